package serve

import (
	"testing"

	"github.com/ValentinKolb/dTree/api/common"
)

func TestParseClusterMembers(t *testing.T) {
	members, err := parseClusterMembers("node-1=localhost:63001, node-2 = localhost:63002")
	if err != nil {
		t.Fatalf("parseClusterMembers failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("Expected 2 members, got %v", members)
	}
	if members[common.HashString("node-2", 0)] != "localhost:63002" {
		t.Errorf("Unexpected members: %v", members)
	}

	if _, err := parseClusterMembers("node-1"); err == nil {
		t.Errorf("Expected an error for a member without address")
	}
}
