package scheduler

import (
	"testing"

	"github.com/hibiken/asynq"
)

func TestRefreshOfferPayloadRoundTrip(t *testing.T) {
	task, err := NewRefreshOfferTask(RefreshOfferPayload{Article: "A100", OperatorID: "op-1"})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if task.Type() != TaskRefreshOffer {
		t.Fatalf("expected task type %q, got %q", TaskRefreshOffer, task.Type())
	}

	payload, err := ParseRefreshOfferPayload(task)
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if payload.Article != "A100" || payload.OperatorID != "op-1" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestParseRefreshOfferPayloadRejectsGarbage(t *testing.T) {
	task := asynq.NewTask(TaskRefreshOffer, []byte("{broken"))
	if _, err := ParseRefreshOfferPayload(task); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestRedisClientOpt(t *testing.T) {
	opt, err := redisClientOpt("redis://:secret@example.com:6380/2", false)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if opt.Addr != "example.com:6380" {
		t.Fatalf("unexpected addr %q", opt.Addr)
	}
	if opt.Password != "secret" || opt.DB != 2 {
		t.Fatalf("unexpected credentials %+v", opt)
	}
	if opt.TLSConfig != nil {
		t.Fatal("expected no TLS config for redis scheme")
	}

	if _, err := redisClientOpt("", false); err == nil {
		t.Fatal("expected error for empty url")
	}

	secure, err := redisClientOpt("rediss://example.com:6380", true)
	if err != nil {
		t.Fatalf("parse rediss url: %v", err)
	}
	if secure.TLSConfig == nil || !secure.TLSConfig.InsecureSkipVerify {
		t.Fatal("expected insecure TLS config honored")
	}
}
