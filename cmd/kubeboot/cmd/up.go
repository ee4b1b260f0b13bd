package cmd

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kubeboot/kubeboot/pkg/common"
	"github.com/kubeboot/kubeboot/pkg/config"
	"github.com/kubeboot/kubeboot/pkg/inventory"
	"github.com/kubeboot/kubeboot/pkg/logger"
	"github.com/kubeboot/kubeboot/pkg/phase"
	"github.com/kubeboot/kubeboot/pkg/plan"
)

type upOptions struct {
	ConfigFile string
	Tags       []string
	SkipTags   []string
	Limit      string
	Check      bool
	Parallel   int
}

var upOpts = &upOptions{}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Bootstrap the cluster described by a manifest",
	Long: `Runs the bootstrap sequence (prepare, init, join-masters, join-workers,
post-config) against the nodes declared in the cluster manifest. Re-running
against a converged cluster is a no-op. With --check no remote state is
changed; the report shows what a real run would apply.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUp(cmd, upOpts)
	},
}

func init() {
	upCmd.Flags().StringVarP(&upOpts.ConfigFile, "config", "f", "cluster.yaml", "Path to the cluster manifest")
	upCmd.Flags().StringSliceVar(&upOpts.Tags, "tags", nil, "Only run the named phases (prepare, init, join-masters, join-workers, post-config)")
	upCmd.Flags().StringSliceVar(&upOpts.SkipTags, "skip-tags", nil, "Skip the named phases")
	upCmd.Flags().StringVar(&upOpts.Limit, "limit", "", "Restrict execution to nodes matching this name glob, e.g. 'master-*'")
	upCmd.Flags().BoolVar(&upOpts.Check, "check", false, "Simulate the run and report would-be changes without touching remote state")
	upCmd.Flags().IntVar(&upOpts.Parallel, "parallel", 0, "Maximum nodes worked on concurrently within a phase (0 uses the default)")

	rootCmd.AddCommand(upCmd)
}

func runUp(cmd *cobra.Command, opts *upOptions) error {
	log := logger.Get()

	for _, t := range append(append([]string{}, opts.Tags...), opts.SkipTags...) {
		if !phase.KnownPhase(t) {
			return fmt.Errorf("unknown phase tag %q (valid: prepare, init, join-masters, join-workers, post-config)", t)
		}
	}
	if err := inventory.ValidateLimitPattern(opts.Limit); err != nil {
		return err
	}

	absPath, err := filepath.Abs(opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("resolving manifest path %s: %w", opts.ConfigFile, err)
	}
	cluster, err := config.LoadClusterFromFile(absPath)
	if err != nil {
		return err
	}
	spec, err := config.Resolve(cluster, log)
	if err != nil {
		return err
	}
	inv, err := inventory.Build(spec)
	if err != nil {
		return err
	}

	fmt.Println(figure.NewFigure("kubeboot", "", true).String())
	printTopology(inv)
	summary, err := config.SummaryYAML(spec)
	if err != nil {
		return err
	}
	fmt.Println("Resolved configuration:")
	fmt.Println(summary)

	if opts.Check {
		log.Infof("check mode: no remote state will be changed")
	} else if !assumeYesFlag {
		if !confirm() {
			log.Warnf("aborted by operator, no remote state was touched")
			return fmt.Errorf("run aborted before any remote mutation")
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report := plan.NewReport(opts.Check)
	ctrl := phase.New(spec, inv, report, log)
	ctrl.Tags = opts.Tags
	ctrl.SkipTags = opts.SkipTags
	ctrl.Limit = opts.Limit
	ctrl.CheckMode = opts.Check
	if opts.Parallel > 0 {
		ctrl.Fanout = int64(opts.Parallel)
	}
	ctrl.ShowProgress = verbosity == 0

	log.Infof("run %s: %d control plane(s), %d worker(s)", report.RunID, len(inv.ControlPlanes), len(inv.Workers))
	ctrl.Run(ctx)

	report.Render(os.Stdout)
	if report.Failed() {
		return fmt.Errorf("run %s finished with failures", report.RunID)
	}
	if !opts.Check {
		fmt.Println()
		color.Yellow("Next step: install a CNI plugin before scheduling workloads, e.g.")
		fmt.Printf("  kubectl --kubeconfig %s apply -f <your-cni-manifest>\n", common.AdminKubeconfigPath)
	}
	return nil
}

func printTopology(inv *inventory.Inventory) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Node", "Role", "Address", "User", "Port"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, n := range inv.All() {
		table.Append([]string{n.Name, n.Role, n.Address, n.User, fmt.Sprintf("%d", n.Port)})
	}
	table.Render()
}

func confirm() bool {
	fmt.Print("Proceed with bootstrapping the nodes listed above? (yes/no): ")
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(strings.ToLower(input)) == "yes"
}
