// SPDX-License-Identifier: Apache-2.0
package qdrant

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jllopis/agentnet/pkg/errors"
)

func TestPointIDIsStable(t *testing.T) {
	u := uuid.NewString()
	if got := pointID(u).GetUuid(); got != u {
		t.Fatalf("uuid ids must pass through, got %s", got)
	}
	a := pointID("mem-1").GetUuid()
	b := pointID("mem-1").GetUuid()
	if a != b {
		t.Fatalf("expected a stable mapping, got %s and %s", a, b)
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Fatalf("mapped id is not a uuid: %v", err)
	}
}

func TestToFilter(t *testing.T) {
	if toFilter(nil) != nil {
		t.Fatalf("empty filter must be nil")
	}
	f := toFilter(map[string]string{"network_id": "n1"})
	if len(f.Must) != 1 {
		t.Fatalf("expected one condition, got %d", len(f.Must))
	}
	field := f.Must[0].GetField()
	if field.GetKey() != "network_id" || field.GetMatch().GetKeyword() != "n1" {
		t.Fatalf("unexpected condition %+v", field)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	in := map[string]interface{}{"network_id": "n1", "count": 3, "score": 0.5, "ok": true}
	out := fromPayload(toPayload(in))
	if out["network_id"] != "n1" || out["count"] != int64(3) || out["score"] != 0.5 || out["ok"] != true {
		t.Fatalf("unexpected payload %v", out)
	}
	if _, ok := toPayload(map[string]interface{}{"skip": []int{1}})["skip"]; ok {
		t.Fatalf("unsupported values must be dropped")
	}
}

func TestWrapClassifiesGRPCCodes(t *testing.T) {
	if wrap("noop", nil) != nil {
		t.Fatal("nil error must stay nil")
	}
	cases := map[codes.Code]bool{
		codes.Unavailable:       true,
		codes.ResourceExhausted: true,
		codes.DeadlineExceeded:  true,
		codes.InvalidArgument:   false,
		codes.NotFound:          false,
	}
	for code, recoverable := range cases {
		ae := errors.As(wrap("search points", status.Error(code, "x")))
		if ae.Code != errors.CodeMemoryError || ae.Recoverable != recoverable {
			t.Errorf("%s: got code=%s recoverable=%v", code, ae.Code, ae.Recoverable)
		}
		if ae.Context["grpc_code"] != code.String() {
			t.Errorf("%s: missing grpc_code context, got %v", code, ae.Context)
		}
	}
}

func TestAPIKeyMetadata(t *testing.T) {
	md, err := apiKey{key: "secret"}.GetRequestMetadata(context.Background())
	if err != nil || md["api-key"] != "secret" {
		t.Fatalf("unexpected metadata %v, %v", md, err)
	}
	if (apiKey{key: "k", secure: true}).RequireTransportSecurity() != true {
		t.Fatal("tls connections must require transport security")
	}
}

func TestNewIsLazy(t *testing.T) {
	s, err := New("localhost:6334", WithAPIKey("k"), WithTLS(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	var empty Store
	if err := empty.Close(); err != nil {
		t.Fatalf("closing an unconnected store: %v", err)
	}
}
