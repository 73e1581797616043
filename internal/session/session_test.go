package session_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/database/models"
	"github.com/hugh/agencydesk/internal/session"
	"github.com/hugh/agencydesk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveContext(t *testing.T) {
	memberOrg := uuid.New()
	ownerOrg := uuid.New()

	tests := []struct {
		name       string
		member     *models.Member
		ownerOrgID uuid.UUID
		want       session.Scope
	}{
		{
			name:       "member wins over owner fallback",
			member:     &models.Member{OrgID: memberOrg, Role: "staff"},
			ownerOrgID: ownerOrg,
			want:       session.Scope{OrgID: memberOrg, Role: "staff"},
		},
		{
			name:   "member alone",
			member: &models.Member{OrgID: memberOrg, Role: "client"},
			want:   session.Scope{OrgID: memberOrg, Role: "client"},
		},
		{
			name:       "owner fallback",
			ownerOrgID: ownerOrg,
			want:       session.Scope{OrgID: ownerOrg, Role: "owner"},
		},
		{
			name: "neither is a guest",
			want: session.Scope{Role: "guest"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, session.ResolveContext(tt.member, tt.ownerOrgID))
		})
	}
}

func TestResolver_Resolve(t *testing.T) {
	ts := testutil.NewTestContext(t)
	defer ts.Cleanup()
	r := session.NewResolver(ts.DB)
	ctx := testutil.TestContext(t)

	t.Run("no identity is fully null", func(t *testing.T) {
		sc, err := r.Resolve(ctx, uuid.Nil, uuid.Nil)
		require.NoError(t, err)
		assert.False(t, sc.Authenticated())
		assert.Equal(t, session.Context{}, sc)
	})

	t.Run("unknown user is unauthenticated", func(t *testing.T) {
		sc, err := r.Resolve(ctx, uuid.New(), uuid.Nil)
		require.NoError(t, err)
		assert.False(t, sc.Authenticated())
	})

	t.Run("owner through membership", func(t *testing.T) {
		sc, err := r.Resolve(ctx, ts.Owner.ID, uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, ts.Org.ID, sc.OrgID)
		assert.Equal(t, "owner", sc.Role)
		assert.True(t, sc.Provisioned())
	})

	t.Run("owner without membership row falls back to owned org", func(t *testing.T) {
		founder := testutil.CreateTestUser(t, ts.DB)
		org := &models.Organization{Name: "Solo", Slug: "solo-" + uuid.New().String()[:8], OwnerID: founder.ID}
		require.NoError(t, ts.DB.Create(org).Error)

		sc, err := r.Resolve(ctx, founder.ID, uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, org.ID, sc.OrgID)
		assert.Equal(t, "owner", sc.Role)
	})

	t.Run("unprovisioned user is a guest", func(t *testing.T) {
		user := testutil.CreateTestUser(t, ts.DB)
		sc, err := r.Resolve(ctx, user.ID, uuid.Nil)
		require.NoError(t, err)
		assert.True(t, sc.Authenticated())
		assert.False(t, sc.Provisioned())
		assert.Equal(t, uuid.Nil, sc.OrgID)
		assert.Equal(t, "guest", sc.Role)
	})

	t.Run("pending membership is ignored", func(t *testing.T) {
		user := testutil.CreateTestUser(t, ts.DB)
		require.NoError(t, ts.DB.Create(&models.Member{
			OrgID: ts.Org.ID, UserID: user.ID, Role: "staff", Status: models.MemberStatusPending,
		}).Error)

		sc, err := r.Resolve(ctx, user.ID, uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, "guest", sc.Role)
	})

	t.Run("client role loads linked clients", func(t *testing.T) {
		user, _ := ts.NewMember(t, "client")
		c := testutil.CreateTestClient(t, ts.DB, ts.Org.ID, "Acme")
		testutil.CreateTestClient(t, ts.DB, ts.Org.ID, "Other")
		testutil.LinkTestClient(t, ts.DB, ts.Org.ID, c.ID, user.ID)

		sc, err := r.Resolve(ctx, user.ID, uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, "client", sc.Role)
		assert.Equal(t, []string{c.ID.String()}, sc.LinkedClientIDs)
		assert.True(t, sc.Abilities().Linked(c.ID.String()))
	})

	t.Run("preferred org selects among memberships", func(t *testing.T) {
		user, _ := ts.NewMember(t, "staff")
		other := testutil.CreateTestOrg(t, ts.DB, testutil.CreateTestUser(t, ts.DB))
		testutil.AddTestMember(t, ts.DB, other.ID, user, "client")

		sc, err := r.Resolve(ctx, user.ID, uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, ts.Org.ID, sc.OrgID)

		sc, err = r.Resolve(ctx, user.ID, other.ID)
		require.NoError(t, err)
		assert.Equal(t, other.ID, sc.OrgID)
		assert.Equal(t, "client", sc.Role)

	})

	t.Run("unreachable preferred org resolves to guest", func(t *testing.T) {
		user, _ := ts.NewMember(t, "staff")
		other := testutil.CreateTestOrg(t, ts.DB, testutil.CreateTestUser(t, ts.DB))
		removed := testutil.AddTestMember(t, ts.DB, other.ID, user, "client")

		foreign := testutil.CreateTestOrg(t, ts.DB, testutil.CreateTestUser(t, ts.DB))
		for name, org := range map[string]uuid.UUID{
			"unknown org": uuid.New(),
			"foreign org": foreign.ID,
		} {
			sc, err := r.Resolve(ctx, user.ID, org)
			require.NoError(t, err, name)
			assert.Equal(t, "guest", sc.Role, name)
			assert.Equal(t, uuid.Nil, sc.OrgID, name)
			assert.True(t, sc.Authenticated(), name)
			assert.False(t, sc.Provisioned(), name)
		}

		require.NoError(t, ts.DB.Delete(removed).Error)
		sc, err := r.Resolve(ctx, user.ID, other.ID)
		require.NoError(t, err)
		assert.Equal(t, "guest", sc.Role, "a removed membership does not fall back to the default org")
		assert.Nil(t, sc.LinkedClientIDs)
	})
}

func TestResolver_LookupErrorIsNotAbsence(t *testing.T) {
	ts := testutil.NewTestContext(t)
	r := session.NewResolver(ts.DB)

	ts.Cleanup()

	_, err := r.Resolve(testutil.TestContext(t), ts.Owner.ID, uuid.Nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrLookupFailed))
}
