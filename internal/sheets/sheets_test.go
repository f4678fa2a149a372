package sheets

import (
	"errors"
	"net"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/deskhelp/deskbot/internal/persist"
)

func TestClassifyStatusCodes(t *testing.T) {
	cases := []struct {
		code int
		want persist.FailureKind
	}{
		{408, persist.Transient},
		{429, persist.Transient},
		{500, persist.Transient},
		{502, persist.Transient},
		{503, persist.Transient},
		{504, persist.Transient},
		{400, persist.Permanent},
		{401, persist.Permanent},
		{403, persist.Permanent},
		{404, persist.Permanent},
	}
	for _, tc := range cases {
		err := classify(&googleapi.Error{Code: tc.code})
		var sinkErr *persist.SinkError
		if !errors.As(err, &sinkErr) {
			t.Fatalf("code %d: classify returned %T", tc.code, err)
		}
		if sinkErr.Kind != tc.want {
			t.Errorf("code %d classified %v, want %v", tc.code, sinkErr.Kind, tc.want)
		}
	}
}

func TestClassifyNetworkErrorTransient(t *testing.T) {
	err := classify(&net.OpError{Op: "dial", Err: errors.New("connection refused")})
	if !persist.IsTransient(err) {
		t.Errorf("network error classified permanent")
	}
}

func TestUnconfiguredSinkNotReady(t *testing.T) {
	if New(Config{}).Ready() {
		t.Errorf("empty config reported ready")
	}
	if New(Config{SpreadsheetID: "sheet"}).Ready() {
		t.Errorf("missing credentials reported ready")
	}
}
