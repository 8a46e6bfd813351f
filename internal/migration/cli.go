package migration

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// PrintStatus 以表格形式输出迁移状态
func PrintStatus(w io.Writer, statuses []MigrationStatus) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		state := "pending"
		switch {
		case s.Dirty:
			state = "dirty"
		case s.Applied:
			state = "applied"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", s.Version, s.Name, state)
	}
	return tw.Flush()
}
