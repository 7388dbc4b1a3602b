package dispatch_test

import (
	"testing"

	"github.com/germanamz/silk/pkg/chats/chat"
	"github.com/germanamz/silk/pkg/chats/role"
	"github.com/germanamz/silk/pkg/dispatch"
	"github.com/germanamz/silk/pkg/modeladapter"
	"github.com/stretchr/testify/assert"
)

func TestToolChoiceFor(t *testing.T) {
	tests := []struct {
		name  string
		turns []chat.Turn
		want  modeladapter.ToolChoice
	}{
		{"empty", nil, modeladapter.Auto()},
		{"plain", []chat.Turn{{Role: role.User, Content: "hello"}}, modeladapter.Auto()},
		{"lower", []chat.Turn{{Role: role.User, Content: "please download the code"}}, modeladapter.Force("t")},
		{"mixed case", []chat.Turn{{Role: role.User, Content: "DownLoad it"}}, modeladapter.Force("t")},
		{"substring", []chat.Turn{{Role: role.User, Content: "redownloading"}}, modeladapter.Force("t")},
		{"only last counts", []chat.Turn{
			{Role: role.User, Content: "download"},
			{Role: role.Assistant, Content: "here you go"},
		}, modeladapter.Auto()},
		{"assistant last", []chat.Turn{{Role: role.Assistant, Content: "you can download it"}}, modeladapter.Force("t")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dispatch.ToolChoiceFor(chat.New(tt.turns...), "t"))
		})
	}
}
