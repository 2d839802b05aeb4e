package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	apiextensionsclient "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"

	"swipify/pkg/pending"
	"swipify/pkg/store"
)

var installCRD bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply the user database migrations for the configured driver. With
--install-crd the PendingLogin custom resource definition used by the
kubernetes pending login backend is installed as well.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&installCRD, "install-crd", false, "install the PendingLogin CRD")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	n, err := db.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ %s database migrated (%d users)\n", cfg.Database.Driver, n)

	if !installCRD {
		return nil
	}

	restConfig, err := pending.RESTConfig(cfg.Pending.Kubeconfig)
	if err != nil {
		return err
	}
	client, err := apiextensionsclient.NewForConfig(restConfig)
	if err != nil {
		return fmt.Errorf("failed to create apiextensions client: %w", err)
	}
	created, err := pending.EnsureCRD(ctx, client)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(out, "✅ PendingLogin CRD installed\n")
	} else {
		fmt.Fprintf(out, "✅ PendingLogin CRD already present\n")
	}
	return nil
}
