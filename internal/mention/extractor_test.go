package mention

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "duplicate mention", text: "hi @bob and @bob again", want: []string{"bob"}},
		{name: "no mentions", text: "no mentions here", want: []string{}},
		{name: "trailing marker", text: "trailing @", want: []string{}},
		{name: "first occurrence order", text: "@carol then @alice then @carol and @bob", want: []string{"carol", "alice", "bob"}},
		{name: "case sensitive", text: "@Bob @bob", want: []string{"Bob", "bob"}},
		{name: "punctuation ends token", text: "ping @ann, @dan!", want: []string{"ann", "dan"}},
		{name: "underscores and digits", text: "@user_42 done", want: []string{"user_42"}},
		{name: "marker followed by space", text: "@ nobody", want: []string{}},
		{name: "double marker", text: "@@eve", want: []string{"eve"}},
		{name: "email-like", text: "mail ann@corp.io", want: []string{"corp"}},
		{name: "empty", text: "", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.text)
			assert.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}
