package console

import "testing"

func TestChannelFilterAdmit(t *testing.T) {
	f := NewChannelFilter("Table-1") // normalized to "table-1" at construction

	cases := []struct {
		name    string
		channel string
		want    bool
	}{
		{"broadcast without tag", "", true},
		{"matching tag", "table-1", true},
		{"foreign tag", "table-2", false},
		{"tag comparison is case-sensitive after normalization", "Table-1", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := Event{Type: EventTypeQueueUpdate, Channel: tc.channel}
			if got := f.Admit(ev); got != tc.want {
				t.Fatalf("Admit(channel=%q) = %v, want %v", tc.channel, got, tc.want)
			}
		})
	}
}
