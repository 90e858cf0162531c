package session_test

import (
	"testing"

	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/session/sessiontest"
)

func TestMemoryStoreConformance(t *testing.T) {
	sessiontest.Run(t, func(t *testing.T) session.Store {
		return session.NewMemoryStore()
	})
}
