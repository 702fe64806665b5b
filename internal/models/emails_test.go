package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexBool(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{`{"has_attachments":true}`, true},
		{`{"has_attachments":"True"}`, true},
		{`{"has_attachments":"false"}`, false},
		{`{"has_attachments":""}`, false},
		{`{}`, false},
	}
	for _, tt := range tests {
		var in IncomingEmail
		require.NoError(t, json.Unmarshal([]byte(tt.in), &in), tt.in)
		assert.Equal(t, tt.want, bool(in.HasAttachments), tt.in)
	}

	var in IncomingEmail
	assert.Error(t, json.Unmarshal([]byte(`{"has_attachments":"maybe"}`), &in))
}
