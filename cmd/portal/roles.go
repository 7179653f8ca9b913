package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/inventory-portal/internal/rbac"
)

var (
	rolesFormat string
	rolesFile   string
)

var rolesCmd = &cobra.Command{
	Use:   "roles [role]",
	Short: "Print the role to permission table",
	Long: `Print the role table loaded from --file (or ROLE_TABLE_PATH), falling back
to the built-in table. With a role argument only that role is printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := rbac.LoadTable(rolesFile)
		if err != nil {
			return err
		}
		role := ""
		if len(args) == 1 {
			r, err := rbac.ParseRole(args[0])
			if err != nil {
				return err
			}
			role = string(r)
		}
		return printRoles(cmd.OutOrStdout(), table, role, rolesFormat)
	},
}

func init() {
	rolesCmd.Flags().StringVarP(&rolesFormat, "format", "f", "text", "Output format: text, yaml, json")
	rolesCmd.Flags().StringVar(&rolesFile, "file", "", "Role table YAML file")
}

func printRoles(w io.Writer, table *rbac.Table, role, format string) error {
	snapshot := table.Snapshot()
	if role != "" {
		snapshot = map[string][]string{role: snapshot[role]}
	}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snapshot)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(map[string]any{"roles": snapshot}); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		names := make([]string, 0, len(snapshot))
		for name := range snapshot {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "%s (%s)\n", rbac.Role(name).Label(), name)
			for _, perm := range snapshot[name] {
				fmt.Fprintf(w, "  - %s\n", perm)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
