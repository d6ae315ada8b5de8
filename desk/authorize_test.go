package desk

import "testing"

func TestCanDelegate(t *testing.T) {
	cases := []struct {
		name string
		from *Desk
		to   *Desk
		want bool
	}{
		{
			name: "direct report",
			from: &Desk{ID: "cto-001", Level: 1},
			to:   &Desk{ID: "dev-001", Level: 2, ReportsTo: "cto-001"},
			want: true,
		},
		{
			name: "same team equal level",
			from: &Desk{ID: "dev-001", Level: 2, TeamID: "backend-team"},
			to:   &Desk{ID: "dev-002", Level: 2, TeamID: "backend-team"},
			want: true,
		},
		{
			name: "same team junior",
			from: &Desk{ID: "dev-001", Level: 2, TeamID: "backend-team"},
			to:   &Desk{ID: "dev-jr-001", Level: 3, TeamID: "backend-team"},
			want: true,
		},
		{
			name: "same team senior",
			from: &Desk{ID: "dev-001", Level: 2, TeamID: "backend-team"},
			to:   &Desk{ID: "lead-001", Level: 1, TeamID: "backend-team"},
			want: false,
		},
		{
			name: "different teams same level",
			from: &Desk{ID: "qa-001", Level: 2, TeamID: "qa-team"},
			to:   &Desk{ID: "dev-001", Level: 2, TeamID: "backend-team"},
			want: false,
		},
		{
			name: "both teamless equal level",
			from: &Desk{ID: "a-001", Level: 2},
			to:   &Desk{ID: "b-001", Level: 2},
			want: false,
		},
		{
			name: "both teamless junior",
			from: &Desk{ID: "a-001", Level: 1},
			to:   &Desk{ID: "b-001", Level: 3},
			want: false,
		},
		{
			name: "from teamless to teamed",
			from: &Desk{ID: "cto-001", Level: 1},
			to:   &Desk{ID: "dev-001", Level: 2, TeamID: "backend-team"},
			want: false,
		},
		{
			name: "indirect report",
			from: &Desk{ID: "cto-001", Level: 1},
			to:   &Desk{ID: "dev-jr-001", Level: 3, ReportsTo: "dev-001"},
			want: false,
		},
		{
			name: "reversed reporting edge",
			from: &Desk{ID: "dev-001", Level: 2, ReportsTo: "cto-001"},
			to:   &Desk{ID: "cto-001", Level: 1},
			want: false,
		},
		{
			name: "nil desks",
			from: nil,
			to:   nil,
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanDelegate(tc.from, tc.to); got != tc.want {
				t.Errorf("CanDelegate = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanDelegate_SelfNeverAuthorized(t *testing.T) {
	d := &Desk{ID: "cto-001", Level: 1}
	if CanDelegate(d, d) {
		t.Error("a teamless desk should not be able to delegate to itself")
	}
}
