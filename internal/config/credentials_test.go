package config

import "testing"

func TestDeriveUsersIsDeterministicAndDistinctPerSalt(t *testing.T) {
	users := []User{
		{Username: "alice", Password: "hunter2", Salt: "saltaaaaaaaaaaaa", UserID: "11111111-1111-1111-1111-111111111111"},
		{Username: "bob", Password: "hunter2", Salt: "saltbbbbbbbbbbbb", UserID: "22222222-2222-2222-2222-222222222222"},
	}
	got, err := DeriveUsers(users)
	if err != nil {
		t.Fatalf("DeriveUsers: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d verifiers, want 2", len(got))
	}
	if string(got["alice"].W0) == string(got["bob"].W0) {
		t.Fatal("same password with different salts should not derive the same w0")
	}

	got2, err := DeriveUsers(users)
	if err != nil {
		t.Fatalf("DeriveUsers (second call): %v", err)
	}
	if string(got["alice"].W0) != string(got2["alice"].W0) {
		t.Fatal("derivation should be deterministic across calls")
	}
}

func TestDeriveUsersRejectsMissingSalt(t *testing.T) {
	_, err := DeriveUsers([]User{{Username: "nosalt", Password: "x", UserID: "11111111-1111-1111-1111-111111111111"}})
	if err == nil {
		t.Fatal("expected an error for a user with no salt")
	}
}

func TestDeriveUsersRejectsInvalidUserID(t *testing.T) {
	_, err := DeriveUsers([]User{{Username: "badid", Password: "x", Salt: "saltaaaaaaaaaaaa", UserID: "not-a-uuid"}})
	if err == nil {
		t.Fatal("expected an error for a user with a malformed userID")
	}
}
