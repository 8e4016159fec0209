package tools

import (
	"context"
	"errors"
	"testing"
)

func TestCallUnknownToolReturnsEmpty(t *testing.T) {
	r := New()
	out := r.Call(context.Background(), "does_not_exist", nil)
	if len(out) != 0 {
		t.Fatalf("expected empty result, got %v", out)
	}
}

func TestCallFailingToolReturnsEmptyNotError(t *testing.T) {
	r := New()
	r.Register(ToolSpec{Name: "boom"}, func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		return nil, errors.New("kaboom")
	})
	out := r.Call(context.Background(), "boom", nil)
	if len(out) != 0 {
		t.Fatalf("expected empty result on tool failure, got %v", out)
	}
}

func TestCallPanickingToolIsIsolated(t *testing.T) {
	r := New()
	r.Register(ToolSpec{Name: "panics"}, func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		panic("unexpected")
	})
	out := r.Call(context.Background(), "panics", nil)
	if len(out) != 0 {
		t.Fatalf("expected empty result after panic recovery, got %v", out)
	}
}

func TestGetUserDataReturnsNameAndAge(t *testing.T) {
	r := New()
	RegisterUserData(r)
	out := r.Call(context.Background(), "get_user_data", nil)
	if _, ok := out["name"]; !ok {
		t.Fatal("expected name in get_user_data result")
	}
	if _, ok := out["age"]; !ok {
		t.Fatal("expected age in get_user_data result")
	}
}
