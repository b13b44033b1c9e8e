package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/btroidl/ivre/internal/doc"
	"github.com/btroidl/ivre/internal/filter"
	"github.com/btroidl/ivre/internal/lookup"
	"github.com/btroidl/ivre/internal/passive"

	"github.com/spf13/cobra"
)

func newPassiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passive",
		Short: "Query and feed the passive observation collection",
	}
	cmd.AddCommand(newPassiveTopCmd(), newPassiveInsertCmd())
	return cmd
}

func passiveFilterFromCmd(cmd *cobra.Command) (filter.Expr, error) {
	f := cmd.Flags()
	var terms []filter.Expr
	if s, _ := f.GetString("sensor"); s != "" {
		m, err := filter.ParseMatch(s)
		if err != nil {
			return nil, fmt.Errorf("invalid --sensor: %w", err)
		}
		terms = append(terms, passive.Sensor(m, false))
	}
	if s, _ := f.GetString("rectype"); s != "" {
		m, err := filter.ParseMatch(s)
		if err != nil {
			return nil, fmt.Errorf("invalid --rectype: %w", err)
		}
		terms = append(terms, passive.ReconType(m))
	}
	if len(terms) == 0 {
		return nil, nil
	}
	return filter.And(terms...), nil
}

func newPassiveTopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "top <field>",
		Short: "Most common values of a field across matching observations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFromCmd(cmd)
			if err != nil {
				return err
			}
			db, err := e.openPassive()
			if err != nil {
				return err
			}
			defer db.Close()

			flt, err := passiveFilterFromCmd(cmd)
			if err != nil {
				return err
			}
			count, _ := cmd.Flags().GetInt("count")
			weighted, _ := cmd.Flags().GetBool("weighted")
			top, err := db.TopValues(args[0], flt, !weighted, count, passive.GetOptions{})
			if err != nil {
				return err
			}
			printTop(top)
			return nil
		},
	}
	cmd.Flags().String("sensor", "", "sensor name")
	cmd.Flags().String("rectype", "", "recon type")
	cmd.Flags().Int("count", 10, "number of values to report (negative = all)")
	cmd.Flags().Bool("weighted", false, "weigh each record by its occurrence count instead of counting it once")
	return cmd
}

func newPassiveInsertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insert",
		Short: "Merge JSON-lines observations from stdin into the collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFromCmd(cmd)
			if err != nil {
				return err
			}
			db, err := e.openPassive()
			if err != nil {
				return err
			}
			defer db.Close()

			var geo *lookup.GeoIP
			if path, _ := cmd.Flags().GetString("geoip"); path != "" {
				geo = lookup.NewGeoIP()
				defer geo.Close()
				info, err := geo.Load(path)
				if err != nil {
					return fmt.Errorf("load geoip database: %w", err)
				}
				e.logger.Info("geoip database loaded",
					"path", path, "type", info.DatabaseType)
			}
			resolver := lookup.Resolver(geo)

			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
			n := 0
			for scanner.Scan() {
				line := scanner.Bytes()
				if len(line) == 0 {
					continue
				}
				var spec doc.Doc
				if err := json.Unmarshal(line, &spec); err != nil {
					return fmt.Errorf("record %d: %w", n+1, err)
				}
				firstseen, ok := spec["firstseen"]
				if !ok {
					if err := db.Insert(spec, resolver); err != nil {
						return fmt.Errorf("record %d: %w", n+1, err)
					}
					n++
					continue
				}
				delete(spec, "firstseen")
				lastseen := spec["lastseen"]
				delete(spec, "lastseen")
				if err := db.InsertOrUpdate(firstseen, spec, resolver, lastseen); err != nil {
					return fmt.Errorf("record %d: %w", n+1, err)
				}
				n++
			}
			if err := scanner.Err(); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%d observations merged\n", n)
			return nil
		},
	}
	cmd.Flags().String("geoip", "", "MMDB database for address enrichment")
	return cmd
}
