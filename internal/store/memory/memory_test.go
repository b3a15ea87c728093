package memory

import (
	"testing"

	"github.com/neutron420/bloom/internal/store"
	"github.com/neutron420/bloom/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return New() })
}
