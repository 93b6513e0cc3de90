package inmemdb_test

import (
	"testing"

	testutil "github.com/trezcool/maendeleo/tests"
)

func TestStores(t *testing.T) {
	testutil.RunStoreTests(t, testutil.NewInmemStores)
}
