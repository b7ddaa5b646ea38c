package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/solatis/formkeeper/internal/core/db"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Store and inspect declarative form documents",
}

var catalogPutCmd = &cobra.Command{
	Use:   "put NAME FILE",
	Short: "Store FILE as the next version of NAME",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		document, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[1], err)
		}

		catalog, closeDB, err := openCatalog(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		rec, err := catalog.Put(cmd.Context(), args[0], document)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s version %d (%s)\n", rec.Name, rec.Version, rec.SpecID)
		return nil
	},
}

var catalogGetCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Print the latest document stored under NAME",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, closeDB, err := openCatalog(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		rec, err := catalog.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), rec.Document)
		return nil
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents at their latest version",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, closeDB, err := openCatalog(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		recs, err := catalog.List(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION\tSPEC ID\tCREATED AT")
		for _, r := range recs {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", r.Name, r.Version, r.SpecID, r.CreatedAt)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogPutCmd, catalogGetCmd, catalogListCmd)
}

func openCatalog(cmd *cobra.Command) (*db.Catalog, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	database, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	catalog, err := db.NewCatalog(database, logger)
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	return catalog, func() { database.Close() }, nil
}
