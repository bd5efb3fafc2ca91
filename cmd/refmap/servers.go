package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"refmap/internal/downloader"
	"refmap/internal/pkgmgr"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Manage language server installations",
	Long: `Install, list, and remove managed language servers. Installed servers
live in versioned package directories under the refmap home with their
binaries linked into a shared bin directory.`,
}

var serversInstallCmd = &cobra.Command{
	Use:   "install <language>",
	Short: "Download and install the language server for a language",
	Args:  cobra.ExactArgs(1),
	RunE:  runServersInstall,
}

var serversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed language servers",
	RunE:  runServersList,
}

var serversUninstallCmd = &cobra.Command{
	Use:   "uninstall <language>",
	Short: "Remove an installed language server",
	Args:  cobra.ExactArgs(1),
	RunE:  runServersUninstall,
}

func init() {
	serversCmd.AddCommand(serversInstallCmd)
	serversCmd.AddCommand(serversListCmd)
	serversCmd.AddCommand(serversUninstallCmd)
}

func runServersInstall(cmd *cobra.Command, args []string) error {
	lang := args[0]

	metadata, err := downloader.GetLSPMetadata(lang)
	if err != nil {
		return err
	}

	manager, err := pkgmgr.NewManager()
	if err != nil {
		return err
	}
	installer, err := pkgmgr.NewInstaller(manager)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return installer.Install(ctx, lang, metadata)
}

func runServersList(cmd *cobra.Command, args []string) error {
	manager, err := pkgmgr.NewManager()
	if err != nil {
		return err
	}

	packages, err := manager.ListInstalled()
	if err != nil {
		return err
	}
	if len(packages) == 0 {
		fmt.Println("No language servers installed.")
		return nil
	}

	for _, pkg := range packages {
		fmt.Printf("%s %s (%s) installed %s\n", pkg.Name, pkg.Version, pkg.Language, pkg.InstalledAt)
	}
	return nil
}

func runServersUninstall(cmd *cobra.Command, args []string) error {
	manager, err := pkgmgr.NewManager()
	if err != nil {
		return err
	}

	packages, err := manager.ListInstalled()
	if err != nil {
		return err
	}

	// Accept either the language tag or the package name.
	for _, pkg := range packages {
		if pkg.Language == args[0] || pkg.Name == args[0] {
			return manager.Uninstall(cmd.Context(), pkg.Name)
		}
	}
	return fmt.Errorf("no installed server for %s", args[0])
}
