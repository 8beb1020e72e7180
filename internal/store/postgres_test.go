package store_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/agora-sim/agora/internal/store"
	"github.com/agora-sim/agora/internal/store/storetest"
	"github.com/agora-sim/agora/internal/testutil"
)

// testPG holds the shared Postgres controller for all tests in this package.
var testPG *store.Postgres

func TestMain(m *testing.M) {
	if os.Getenv("AGORA_TEST_SKIP_POSTGRES") != "" {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	tc := testutil.MustStartPostgres()

	var err error
	testPG, err = tc.NewController(ctx, testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open postgres store: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}

	code := m.Run()

	_ = testPG.Close(ctx)
	tc.Terminate()
	os.Exit(code)
}

func TestPostgresConformance(t *testing.T) {
	if testPG == nil {
		t.Skip("postgres tests disabled")
	}
	storetest.Run(t, func(t *testing.T) store.Controller {
		ctx := context.Background()
		_, err := testPG.Pool().Exec(ctx, `TRUNCATE agents, actions, logs`)
		if err != nil {
			t.Fatalf("truncate tables: %v", err)
		}
		return testPG
	})
}
