package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestKindOfThroughWrapping(t *testing.T) {
	base := errors.New("connection reset")
	err := fmt.Errorf("retrieve: %w", Retrieval("index.search", base))

	if got := KindOf(err); got != KindRetrieval {
		t.Fatalf("KindOf = %q, want %q", got, KindRetrieval)
	}
	if !IsKind(err, KindRetrieval) {
		t.Fatal("IsKind(retrieval) = false")
	}
	if IsKind(err, KindGeneration) {
		t.Fatal("IsKind(generation) = true")
	}
	if !errors.Is(err, base) {
		t.Fatal("underlying error lost")
	}
	if StatusOf(err) != http.StatusBadGateway {
		t.Fatalf("StatusOf = %d", StatusOf(err))
	}
}

func TestKindOfForeignAndNil(t *testing.T) {
	if KindOf(nil) != "" {
		t.Fatal("nil error should have no kind")
	}
	if KindOf(errors.New("boom")) != KindFatal {
		t.Fatal("foreign errors should be fatal")
	}
	if StatusOf(errors.New("boom")) != http.StatusInternalServerError {
		t.Fatal("foreign errors should map to 500")
	}
}

func TestCancelledDeadlineStatus(t *testing.T) {
	if got := Cancelled("route", context.DeadlineExceeded).Status; got != http.StatusGatewayTimeout {
		t.Fatalf("deadline status = %d", got)
	}
	if got := Cancelled("route", context.Canceled).Status; got != http.StatusRequestTimeout {
		t.Fatalf("cancel status = %d", got)
	}
}

func TestErrorMessage(t *testing.T) {
	err := Generation("generate", errors.New("quota"))
	want := "generate: answer generation failed: quota"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
	if Invalid("answer", "question is empty").Error() != "answer: question is empty" {
		t.Fatalf("unexpected invalid message: %q", Invalid("answer", "question is empty").Error())
	}
}

func TestWrapRedis(t *testing.T) {
	if WrapRedis(nil) != nil {
		t.Fatal("nil in, nil out")
	}
	if !IsKind(WrapRedis(redis.Nil), KindNotFound) {
		t.Fatal("redis.Nil should map to not found")
	}
	if !IsKind(WrapRedis(errors.New("dial tcp")), KindUnavailable) {
		t.Fatal("redis failures should map to unavailable")
	}
}
