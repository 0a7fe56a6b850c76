package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakePinger struct {
	names   []string
	failing map[string]bool
}

func (f *fakePinger) ResourceNames() []string { return f.names }

func (f *fakePinger) Ping(name string) error {
	if f.failing[name] {
		return errors.New("connection refused")
	}
	return nil
}

func TestResourceCheckerReportsReachable(t *testing.T) {
	c := NewResourceChecker("imap", &fakePinger{names: []string{"imap"}})
	result := c.Check(context.Background())
	assert.True(t, result.Healthy)
}

func TestResourceCheckerReportsUnreachable(t *testing.T) {
	c := NewResourceChecker("imap", &fakePinger{names: []string{"imap"}, failing: map[string]bool{"imap": true}})
	result := c.Check(context.Background())
	assert.False(t, result.Healthy)
}

func TestRegistryStaysHealthyUntilRetryThresholdExceeded(t *testing.T) {
	p := &fakePinger{names: []string{"imap"}, failing: map[string]bool{"imap": true}}
	r := NewRegistry(p, Config{Retries: 3})

	for i := 0; i < 2; i++ {
		statuses := r.CheckAll(context.Background())
		assert.True(t, statuses["imap"].Healthy, "should stay healthy before the retry threshold")
	}

	statuses := r.CheckAll(context.Background())
	assert.False(t, statuses["imap"].Healthy, "should flip unhealthy on the 3rd consecutive failure")
}

func TestRegistryRecoversOnSuccess(t *testing.T) {
	p := &fakePinger{names: []string{"imap"}, failing: map[string]bool{"imap": true}}
	r := NewRegistry(p, Config{Retries: 1})

	statuses := r.CheckAll(context.Background())
	assert.False(t, statuses["imap"].Healthy)

	p.failing["imap"] = false
	statuses = r.CheckAll(context.Background())
	assert.True(t, statuses["imap"].Healthy)
}
