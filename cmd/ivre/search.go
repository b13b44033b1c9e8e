package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/btroidl/ivre/internal/active"
	"github.com/btroidl/ivre/internal/codec"
	"github.com/btroidl/ivre/internal/filter"

	"github.com/spf13/cobra"
)

// addHostFilterFlags registers the flags shared by every command that
// selects host records. String filters accept /re/ regexp form.
func addHostFilterFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("host", "", "host address")
	f.String("hostname", "", "hostname")
	f.String("domain", "", "hostname domain")
	f.String("category", "", "scan category")
	f.StringSlice("country", nil, "country codes")
	f.IntSlice("asnum", nil, "AS numbers")
	f.String("source", "", "scan source")
	f.String("service", "", "service name")
	f.String("script", "", "script id")
	f.Int("port", 0, "port number")
	f.String("protocol", "tcp", "port protocol")
	f.String("state", "open", "port state")
}

func hostFilterFromCmd(cmd *cobra.Command) (filter.Expr, error) {
	f := cmd.Flags()
	var terms []filter.Expr

	matchTerm := func(name string, build func(filter.Match) filter.Expr) error {
		s, _ := f.GetString(name)
		if s == "" {
			return nil
		}
		m, err := filter.ParseMatch(s)
		if err != nil {
			return fmt.Errorf("invalid --%s: %w", name, err)
		}
		terms = append(terms, build(m))
		return nil
	}

	if s, _ := f.GetString("host"); s != "" {
		addr, err := codec.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid --host: %w", err)
		}
		terms = append(terms, active.Host(addr, false))
	}
	if err := matchTerm("hostname", func(m filter.Match) filter.Expr {
		return active.Hostname(m, false)
	}); err != nil {
		return nil, err
	}
	if err := matchTerm("domain", func(m filter.Match) filter.Expr {
		return active.Domain(m, false)
	}); err != nil {
		return nil, err
	}
	if err := matchTerm("category", func(m filter.Match) filter.Expr {
		return active.Category(m, false)
	}); err != nil {
		return nil, err
	}
	if err := matchTerm("source", func(m filter.Match) filter.Expr {
		return active.Source(m, false)
	}); err != nil {
		return nil, err
	}
	if codes, _ := f.GetStringSlice("country"); len(codes) > 0 {
		terms = append(terms, active.Country(codes, false))
	}
	if nums, _ := f.GetIntSlice("asnum"); len(nums) > 0 {
		terms = append(terms, active.ASNum(nums, false))
	}

	protocol, _ := f.GetString("protocol")
	state, _ := f.GetString("state")
	port := -1
	if f.Changed("port") {
		port, _ = f.GetInt("port")
	}
	switch srv, _ := f.GetString("service"); {
	case srv != "":
		m, err := filter.ParseMatch(srv)
		if err != nil {
			return nil, fmt.Errorf("invalid --service: %w", err)
		}
		terms = append(terms, active.Service(m, port, protocol))
	case port >= 0:
		terms = append(terms, active.Port(port, protocol, state, false))
	}

	if s, _ := f.GetString("script"); s != "" {
		m, err := filter.ParseMatch(s)
		if err != nil {
			return nil, fmt.Errorf("invalid --script: %w", err)
		}
		expr, err := active.Script(m, filter.Match{}, nil, false)
		if err != nil {
			return nil, err
		}
		terms = append(terms, expr)
	}

	if len(terms) == 0 {
		return nil, nil
	}
	return filter.And(terms...), nil
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search host records, one JSON document per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFromCmd(cmd)
			if err != nil {
				return err
			}
			db, err := e.openActive()
			if err != nil {
				return err
			}
			defer db.Close()

			flt, err := hostFilterFromCmd(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			skip, _ := cmd.Flags().GetInt("skip")
			recs, err := db.Get(flt, active.GetOptions{Limit: limit, Skip: skip})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			for _, rec := range recs {
				if err := enc.Encode(rec); err != nil {
					return err
				}
			}
			return nil
		},
	}
	addHostFilterFlags(cmd)
	cmd.Flags().Int("limit", 0, "maximum records (0 = unlimited)")
	cmd.Flags().Int("skip", 0, "records to skip")
	return cmd
}

func newTopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "top <field>",
		Short: "Most common values of a field across matching hosts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFromCmd(cmd)
			if err != nil {
				return err
			}
			db, err := e.openActive()
			if err != nil {
				return err
			}
			defer db.Close()

			flt, err := hostFilterFromCmd(cmd)
			if err != nil {
				return err
			}
			count, _ := cmd.Flags().GetInt("count")
			top, err := db.TopValues(args[0], flt, count, active.GetOptions{})
			if err != nil {
				return err
			}
			printTop(top)
			return nil
		},
	}
	addHostFilterFlags(cmd)
	cmd.Flags().Int("count", 10, "number of values to report (negative = all)")
	return cmd
}
