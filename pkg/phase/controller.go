package phase

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kubeboot/kubeboot/pkg/apis/kubeboot/v1alpha1"
	"github.com/kubeboot/kubeboot/pkg/cluster"
	"github.com/kubeboot/kubeboot/pkg/common"
	"github.com/kubeboot/kubeboot/pkg/connector"
	"github.com/kubeboot/kubeboot/pkg/credential"
	"github.com/kubeboot/kubeboot/pkg/inventory"
	"github.com/kubeboot/kubeboot/pkg/logger"
	"github.com/kubeboot/kubeboot/pkg/plan"
	"github.com/kubeboot/kubeboot/pkg/runner"
	"github.com/kubeboot/kubeboot/pkg/task"
)

// Readiness checks registered cluster nodes after bootstrap. Implemented by
// the cluster package; an interface so controller tests can fake it.
type Readiness interface {
	MissingOrNotReady(ctx context.Context, conn connector.Connector, expected []string) ([]string, error)
	WaitReady(ctx context.Context, conn connector.Connector, expected []string) error
}

// Controller drives the phase sequence across the inventory. Within a phase
// nodes run concurrently up to Fanout; phases are separated by a global
// barrier. One Controller serves exactly one run.
type Controller struct {
	Spec      *v1alpha1.ClusterSpec
	Inventory *inventory.Inventory
	Report    *plan.Report
	Log       *logger.Logger
	Readiness Readiness

	// Tags restricts the run to the named phases; empty means all. SkipTags
	// excludes phases and wins over Tags.
	Tags     []string
	SkipTags []string
	// Limit is a glob on node names; non-matching nodes are never contacted.
	Limit        string
	CheckMode    bool
	Fanout       int64
	ShowProgress bool

	// Dial builds a fresh connector per node. Swappable in tests.
	Dial func() connector.Connector

	runner   *runner.Runner
	exchange credential.Exchange
	cred     *credential.JoinCredential

	// excluded holds nodes dropped from later phases after failing an
	// earlier one. Only workers end up here; a control-plane failure
	// stops the run at the barrier instead.
	excluded map[string]bool

	mu       sync.Mutex
	sessions map[string]*session
}

// session is one node's live connection plus its gathered facts.
type session struct {
	conn  connector.Connector
	facts *runner.Facts
}

// New builds a Controller with default fan-out and SSH transport.
func New(spec *v1alpha1.ClusterSpec, inv *inventory.Inventory, report *plan.Report, log *logger.Logger) *Controller {
	return &Controller{
		Spec:      spec,
		Inventory: inv,
		Report:    report,
		Log:       log,
		Readiness: cluster.NewChecker(),
		Fanout:    common.DefaultFanout,
		Dial:      func() connector.Connector { return connector.NewSSHConnector() },
		runner:    runner.New(),
		excluded:  map[string]bool{},
		sessions:  map[string]*session{},
	}
}

// Run executes the selected phases in order. Node failures are aggregated
// into the report, never returned; the only error conditions here are
// programming mistakes, so Run's outcome is read from the report.
func (c *Controller) Run(ctx context.Context) {
	defer c.closeAll()
	if c.excluded == nil {
		c.excluded = map[string]bool{}
	}

	for _, ph := range Sequence() {
		plog := c.Log.With("run", c.Report.RunID, "phase", ph.Name)
		if !c.selected(ph.Name) {
			plog.Debugf("phase deselected, skipping")
			continue
		}
		if ctx.Err() != nil {
			c.Report.Aborted = true
			break
		}

		targets := c.dropExcluded(ph.Name, inventory.Limit(ph.Targets(c.Inventory), c.Limit))
		if len(targets) == 0 {
			plog.Infof("no target nodes, nothing to do")
			continue
		}

		if needsCredential(ph.Name) {
			if err := c.ensureCredential(ctx); err != nil {
				c.recordCredentialFailure(err)
				plog.Errorf("cannot obtain join credential, join phases blocked: %v", err)
				break
			}
		}

		plog.Infof("starting on %d node(s)", len(targets))
		c.runPhase(ctx, ph, targets)

		if ctx.Err() != nil {
			c.Report.Aborted = true
			plog.Warnf("run cancelled, stopping after in-flight work")
			break
		}
		if failed := c.Report.FailedResults(ph.Name); len(failed) > 0 {
			names := make([]string, 0, len(failed))
			blocking := false
			for _, res := range failed {
				names = append(names, res.Node)
				if res.Role != common.RoleWorker {
					blocking = true
				}
			}
			// Only nodes the remaining phases require hold the barrier. A
			// failed worker cannot endanger the control plane, so it is
			// dropped from later phases and the bootstrap goes on.
			if blocking {
				plog.Errorf("failed on node(s) %s, not advancing past this phase", strings.Join(names, ", "))
				break
			}
			for _, res := range failed {
				c.excluded[res.Node] = true
			}
			plog.Warnf("worker node(s) %s failed, later phases continue without them", strings.Join(names, ", "))
		}

		if ph.Name == PhaseInit && !c.CheckMode {
			// Mint the join credential while the primary's session is warm.
			// A failure here means init did not actually produce a usable
			// cluster, so it counts against the init phase.
			if err := c.ensureCredential(ctx); err != nil {
				c.recordCredentialFailure(err)
				plog.Errorf("join credential extraction failed: %v", err)
				break
			}
		}
		plog.Successf("phase complete")
	}
}

// dropExcluded removes nodes that failed an earlier phase from the target
// list, recording a skipped result so the report shows why they were left out.
func (c *Controller) dropExcluded(phase string, targets []*inventory.Node) []*inventory.Node {
	var kept []*inventory.Node
	for _, node := range targets {
		if c.excluded[node.Name] {
			c.Report.Add(plan.RunResult{
				Node: node.Name, Role: node.Role, Phase: phase,
				Status: plan.StatusSkipped, Message: "failed an earlier phase",
			})
			continue
		}
		kept = append(kept, node)
	}
	return kept
}

// runPhase fans the phase out over its targets, bounded by Fanout, and
// returns only when every target's result is recorded. That wait is the
// barrier the next phase depends on.
func (c *Controller) runPhase(ctx context.Context, ph Phase, targets []*inventory.Node) {
	var bar *progressbar.ProgressBar
	if c.ShowProgress {
		bar = progressbar.NewOptions(len(targets),
			progressbar.OptionSetDescription(ph.Name),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	sem := semaphore.NewWeighted(c.Fanout)
	var g errgroup.Group
	for _, node := range targets {
		node := node
		// Acquire honors cancellation, so a cancelled run stops dispatching
		// immediately while in-flight nodes drain below.
		if err := sem.Acquire(ctx, 1); err != nil {
			c.Report.Add(plan.RunResult{
				Node: node.Name, Role: node.Role, Phase: ph.Name,
				Status: plan.StatusSkipped, Message: "run cancelled before dispatch",
			})
			if bar != nil {
				_ = bar.Add(1)
			}
			continue
		}
		g.Go(func() error {
			defer sem.Release(1)
			c.Report.Add(c.runNode(ctx, ph, node))
			if bar != nil {
				_ = bar.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	if bar != nil {
		_ = bar.Finish()
	}
}

// runNode connects to one node and applies the phase's task plan to it.
func (c *Controller) runNode(ctx context.Context, ph Phase, node *inventory.Node) plan.RunResult {
	res := plan.RunResult{Node: node.Name, Role: node.Role, Phase: ph.Name}
	nlog := c.Log.With("run", c.Report.RunID, "phase", ph.Name, "host", node.Name)

	sess, err := c.session(ctx, node)
	if err != nil {
		nlog.Errorf("unreachable: %v", err)
		res.Status = plan.StatusFailed
		res.Message = fmt.Sprintf("unreachable: %v", err)
		return res
	}

	// Remote operations run under their own deadline, detached from the
	// operator context so cancellation drains cleanly between tasks.
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), common.DefaultPhaseTimeout)
	defer cancel()
	tc := &task.Context{
		Ctx:       execCtx,
		Halt:      ctx,
		Conn:      sess.conn,
		Runner:    c.runner,
		Facts:     sess.facts,
		Log:       nlog,
		CheckMode: c.CheckMode,
	}

	tasks, err := ph.Plan(c, node, tc)
	if err != nil {
		nlog.Errorf("building task plan: %v", err)
		res.Status = plan.StatusFailed
		res.Message = fmt.Sprintf("building task plan: %v", err)
		return res
	}

	changed, err := task.Run(tc, tasks)
	res.Changed = changed
	if err != nil {
		if ctx.Err() != nil {
			res.Status = plan.StatusFailed
			res.Message = "run cancelled"
			return res
		}
		nlog.Errorf("task failed: %v", err)
		res.Status = plan.StatusFailed
		res.Message = err.Error()
		return res
	}
	res.Status = plan.StatusSuccess
	if changed == 0 {
		res.Message = "already converged"
	}
	return res
}

// session returns the node's live connection, dialing and gathering facts on
// first use. Reconnects transparently if an earlier phase's connection died.
func (c *Controller) session(ctx context.Context, node *inventory.Node) (*session, error) {
	c.mu.Lock()
	if s, ok := c.sessions[node.Name]; ok && s.conn.IsConnected() {
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	conn := c.Dial()
	cfg := connector.ConnectionCfg{
		Host:           node.Address,
		Port:           node.Port,
		User:           node.User,
		Password:       node.Password,
		PrivateKeyPath: node.PrivateKeyPath,
		Timeout:        common.DefaultConnectTimeout,
		Retries:        common.DefaultConnectRetries,
	}
	if err := conn.Connect(ctx, cfg); err != nil {
		return nil, err
	}
	facts, err := c.runner.GatherFacts(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("gathering facts: %w", err)
	}
	c.Log.Debugf("connected to %s (%s %s, pkg %s)", node.Name, facts.OSID, facts.OSVersion, facts.PackageManager.Type)

	s := &session{conn: conn, facts: facts}
	c.mu.Lock()
	c.sessions[node.Name] = s
	c.mu.Unlock()
	return s, nil
}

// ensureCredential makes the join credential available, extracting it from
// the primary on first need. Check mode presets placeholder material so join
// plans can be rendered without a live cluster.
func (c *Controller) ensureCredential(ctx context.Context) error {
	if c.cred != nil {
		return nil
	}
	if c.CheckMode {
		c.exchange.Preset(placeholderCredential())
		cred, err := c.exchange.Get(ctx, nil, nil)
		if err != nil {
			return err
		}
		c.cred = cred
		return nil
	}
	sess, err := c.session(ctx, c.Inventory.Primary())
	if err != nil {
		return err
	}
	cred, err := c.exchange.Get(ctx, sess.conn, c.runner)
	if err != nil {
		return err
	}
	c.cred = cred
	return nil
}

func (c *Controller) recordCredentialFailure(err error) {
	c.Report.Add(plan.RunResult{
		Node:    c.Inventory.Primary().Name,
		Role:    common.RoleControlPlanePrimary,
		Phase:   PhaseInit,
		Status:  plan.StatusFailed,
		Message: err.Error(),
	})
}

// selected applies the tag filters. SkipTags wins over Tags.
func (c *Controller) selected(name string) bool {
	for _, t := range c.SkipTags {
		if t == name {
			return false
		}
	}
	if len(c.Tags) == 0 {
		return true
	}
	for _, t := range c.Tags {
		if t == name {
			return true
		}
	}
	return false
}

func (c *Controller) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, s := range c.sessions {
		if err := s.conn.Close(); err != nil {
			c.Log.Debugf("closing connection to %s: %v", name, err)
		}
	}
	c.sessions = map[string]*session{}
}

func needsCredential(name string) bool {
	return name == PhaseJoinMasters || name == PhaseJoinWorkers
}

// placeholderCredential stands in for the real join material during check
// mode, where no cluster exists to mint one.
func placeholderCredential() *credential.JoinCredential {
	return &credential.JoinCredential{
		Token:          "abcdef.0123456789abcdef",
		CACertHash:     "sha256:" + strings.Repeat("0", 64),
		CertificateKey: strings.Repeat("0", 64),
	}
}
