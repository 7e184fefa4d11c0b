package planning

import (
	"reflect"
	"testing"
)

func TestParseTasks(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "dashes",
			in:   "- Interview customers\n- Draft landing page\n- Price the MVP",
			want: []string{"Interview customers", "Draft landing page", "Price the MVP"},
		},
		{
			name: "blank lines and whitespace",
			in:   "\n  - Interview customers  \n\n- Draft landing page\n   \n",
			want: []string{"Interview customers", "Draft landing page"},
		},
		{
			name: "mixed markers",
			in:   "* First\n• Second\n-Third",
			want: []string{"First", "Second", "Third"},
		},
		{
			name: "plain lines kept",
			in:   "Do the thing\nDo the other thing",
			want: []string{"Do the thing", "Do the other thing"},
		},
		{
			name: "bare dash dropped",
			in:   "-\n- Keep me",
			want: []string{"Keep me"},
		},
		{
			name: "empty input",
			in:   "",
			want: []string{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseTasks(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ParseTasks(%q) = %#v, want %#v", tc.in, got, tc.want)
			}
		})
	}
}
