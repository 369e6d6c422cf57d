package model_test

import (
	"testing"

	"codearena/internal/common/ids"
	"codearena/internal/testutil"
	"codearena/internal/user/model"
)

func TestDisplayNameFallbackChain(t *testing.T) {
	tests := []struct {
		name        string
		displayName string
		username    string
		email       string
		want        string
	}{
		{name: "explicit", displayName: "Ada L.", username: "ada", email: "ada@x.io", want: "Ada L."},
		{name: "username", username: "ada", email: "lovelace@x.io", want: "ada"},
		{name: "email local part", email: "lovelace@x.io", want: "lovelace"},
		{name: "blank display name", displayName: "   ", email: "grace@x.io", want: "grace"},
		{name: "nothing", want: "User"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertEqual(t, model.DisplayName(tt.displayName, tt.username, tt.email), tt.want)
		})
	}
}

func TestIsAdminOnlyForExactAdminRole(t *testing.T) {
	for _, role := range []string{"", "coder", "Admin", "ADMIN", "superadmin", "admin "} {
		u := model.BuildUser(model.Profile{ID: "u1", Role: role}, "")
		testutil.AssertFalse(t, u.IsAdmin(), "role "+role+" must not be admin")
		testutil.AssertEqual(t, u.Role, model.RoleCoder)
	}
	u := model.BuildUser(model.Profile{ID: "u1", Role: "admin"}, "")
	testutil.AssertTrue(t, u.IsAdmin(), "admin role must be admin")
}

func TestBuildUserFallbacks(t *testing.T) {
	u := model.BuildUser(model.Profile{ID: ids.ID("42")}, "sam@example.com")

	testutil.AssertEqual(t, u.Email, "sam@example.com")
	testutil.AssertEqual(t, u.Username, "sam")
	testutil.AssertEqual(t, u.DisplayName, "sam")
	testutil.AssertEqual(t, u.AvatarURL, "https://api.dicebear.com/7.x/avataaars/svg?seed=42")
	testutil.AssertTrue(t, u.Bio == nil, "bio should be absent")
}

func TestBuildUserPrefersProfileFields(t *testing.T) {
	bio := "competitive programmer"
	p := model.Profile{
		ID:          "u-7",
		Email:       "kim@example.com",
		Username:    "kim",
		DisplayName: "Kim",
		AvatarURL:   "https://cdn/kim.png",
		Role:        "admin",
		Bio:         &bio,
	}
	u := model.BuildUser(p, "other@example.com")

	testutil.AssertEqual(t, u.Email, "kim@example.com")
	testutil.AssertEqual(t, u.DisplayName, "Kim")
	testutil.AssertEqual(t, u.AvatarURL, "https://cdn/kim.png")
	testutil.AssertEqual(t, *u.Bio, bio)

	bio = "changed"
	testutil.AssertEqual(t, *u.Bio, "competitive programmer")
}

func TestSessionStateAccessors(t *testing.T) {
	testutil.AssertEqual(t, model.Initializing().UserID(), "")
	testutil.AssertEqual(t, model.Anonymous().Phase, model.SessionAnonymous)

	st := model.Authenticated(model.User{ID: "u1", Role: model.RoleAdmin})
	testutil.AssertEqual(t, st.UserID(), "u1")
	testutil.AssertTrue(t, st.IsAdmin(), "admin state")
	testutil.AssertFalse(t, model.Anonymous().IsAdmin(), "anonymous is never admin")
}
