package db_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"healthshare/internal/models"
	"healthshare/internal/testutil"
)

func skipIfNoTestDB(t *testing.T) {
	t.Helper()
	if os.Getenv("TEST_DATABASE_URL") == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}
}

func TestListSharesIntegration(t *testing.T) {
	skipIfNoTestDB(t)
	database, cleanup := testutil.TestDB(t)
	defer cleanup()
	ctx := context.Background()

	ownerID := uuid.New()
	otherOwner := uuid.New()

	first := testutil.CreateTestShare(t, database, ownerID, "proof-alpha", models.KindProof, models.StatusActive, nil)
	second := testutil.CreateTestShare(t, database, ownerID, "proof-beta", models.KindProof, models.StatusRevoked, nil)
	testutil.CreateTestShare(t, database, otherOwner, "proof-gamma", models.KindProof, models.StatusActive, nil)

	shares, err := database.ListShares(ctx, ownerID, "", "")
	if err != nil {
		t.Fatalf("ListShares() error = %v", err)
	}
	if len(shares) != 2 {
		t.Fatalf("ListShares() returned %d shares, want 2", len(shares))
	}
	// Newest first: the later insert sorts before the earlier one.
	if shares[0].ID != second.ID || shares[1].ID != first.ID {
		t.Errorf("ListShares() order = [%s %s], want [%s %s]",
			shares[0].ID, shares[1].ID, second.ID, first.ID)
	}
	for _, s := range shares {
		if s.OwnerID != ownerID {
			t.Errorf("ListShares() leaked share of owner %s", s.OwnerID)
		}
		if len(s.Recipients) == 0 {
			t.Errorf("ListShares() share %s has no recipients loaded", s.ID)
		}
	}

	// Status filter
	revoked, err := database.ListShares(ctx, ownerID, models.StatusRevoked, "")
	if err != nil {
		t.Fatalf("ListShares(revoked) error = %v", err)
	}
	if len(revoked) != 1 || revoked[0].ID != second.ID {
		t.Errorf("ListShares(revoked) = %v, want [%s]", revoked, second.ID)
	}

	// Subject search
	alpha, err := database.ListShares(ctx, ownerID, "", "alpha")
	if err != nil {
		t.Fatalf("ListShares(search) error = %v", err)
	}
	if len(alpha) != 1 || alpha[0].ID != first.ID {
		t.Errorf("ListShares(search alpha) = %v, want [%s]", alpha, first.ID)
	}
}

func TestGetDueShareIDsIntegration(t *testing.T) {
	skipIfNoTestDB(t)
	database, cleanup := testutil.TestDB(t)
	defer cleanup()
	ctx := context.Background()

	ownerID := uuid.New()
	overdue := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	due := testutil.CreateTestShare(t, database, ownerID, "due", models.KindFileBundle, models.StatusActive, &overdue)
	testutil.CreateTestShare(t, database, ownerID, "fresh", models.KindFileBundle, models.StatusActive, &future)
	testutil.CreateTestShare(t, database, ownerID, "no-expiry", models.KindFileBundle, models.StatusActive, nil)
	// Pending shares never hit the sweep query, even when overdue.
	testutil.CreateTestShare(t, database, ownerID, "pending-overdue", models.KindProof, models.StatusPending, &overdue)

	ids, err := database.GetDueShareIDs(ctx, time.Now(), 100)
	if err != nil {
		t.Fatalf("GetDueShareIDs() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != due.ID {
		t.Errorf("GetDueShareIDs() = %v, want [%s]", ids, due.ID)
	}
}

func TestGetShareStatsIntegration(t *testing.T) {
	skipIfNoTestDB(t)
	database, cleanup := testutil.TestDB(t)
	defer cleanup()
	ctx := context.Background()

	ownerID := uuid.New()
	testutil.CreateTestShare(t, database, ownerID, "a", models.KindProof, models.StatusActive, nil)
	testutil.CreateTestShare(t, database, ownerID, "b", models.KindProof, models.StatusActive, nil)
	testutil.CreateTestShare(t, database, ownerID, "c", models.KindProof, models.StatusPending, nil)
	testutil.CreateTestShare(t, database, ownerID, "d", models.KindProof, models.StatusRevoked, nil)

	stats, err := database.GetShareStats(ctx, ownerID)
	if err != nil {
		t.Fatalf("GetShareStats() error = %v", err)
	}
	if stats.Active != 2 || stats.Pending != 1 || stats.Revoked != 1 || stats.Expired != 0 {
		t.Errorf("GetShareStats() = %+v, want 2 active, 1 pending, 1 revoked", stats)
	}
}
