package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"elasticroute/internal/buildinfo"
	"elasticroute/internal/config"
	"elasticroute/internal/evol"
	"elasticroute/internal/integrations"
	"elasticroute/internal/logging"
	"elasticroute/internal/model"
	"elasticroute/internal/opt"
	"elasticroute/internal/tsp"
)

// shared by solve and tsp; Ctrl-C stops the search and prints the best so far
var searchFlags = []cli.Flag{
	&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file; its solver section is used"},
	&cli.Uint64Flag{Name: "seed", Usage: "fix the random stream"},
	&cli.IntFlag{Name: "generations", Aliases: []string{"g"}, Usage: "maximum generations"},
	&cli.DurationFlag{Name: "time", Aliases: []string{"t"}, Usage: "time limit, e.g. 30s"},
	&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "parallel offspring workers (0: all CPUs)"},
	&cli.BoolFlag{Name: "json", Usage: "print the result as JSON"},
	&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log solver progress to stderr"},
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "vrpsolve",
		Usage:   "evolutionary vehicle routing and TSP solver",
		Version: buildinfo.Version,
		Commands: []*cli.Command{
			{
				Name:      "solve",
				Usage:     "solve a routing instance",
				ArgsUsage: "FILE",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "cvrplib, solomon, loads, json or yaml (default: from the extension)"},
				}, searchFlags...),
				Action: solveCmd,
			},
			{
				Name:      "tsp",
				Usage:     "solve the nodes of a CVRPLIB file as a round trip from the depot",
				ArgsUsage: "FILE",
				Flags:     searchFlags,
				Action:    tspCmd,
			},
			{
				Name:  "version",
				Usage: "print build information",
				Action: func(c *cli.Context) error {
					info := buildinfo.Info()
					fmt.Fprintf(c.App.Writer, "vrpsolve %s (commit %s, built %s, %s)\n", info["version"], info["commit"], info["builtAt"], info["go"])
					return nil
				},
			},
		},
	}
}

func fileArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", cli.Exit("expected exactly one FILE argument", 2)
	}
	return c.Args().First(), nil
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	if !c.Bool("verbose") {
		return logging.Nop(), nil
	}
	return logging.New("debug", true)
}

// solverConfig starts from the defaults or the config file and applies the
// search flags.
func solverConfig(c *cli.Context) (opt.Config, error) {
	cfg := opt.DefaultConfig()
	if path := c.String("config"); path != "" {
		svc, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = svc.Solver
	}
	if c.IsSet("seed") {
		seed := c.Uint64("seed")
		cfg.Evol.Seed = &seed
	}
	if c.IsSet("generations") {
		cfg.Evol.MaxGenerations = c.Int("generations")
	}
	if c.IsSet("time") {
		cfg.Evol.TimeLimit = c.Duration("time")
	}
	if c.IsSet("workers") {
		cfg.Evol.Workers = c.Int("workers")
	}
	return cfg, cfg.Validate()
}

type solveReport struct {
	Instance string            `json:"instance"`
	Solution model.Solution    `json:"solution"`
	Elapsed  string            `json:"elapsed"`
	Host     buildinfo.SysInfo `json:"host"`
}

func solveCmd(c *cli.Context) error {
	path, err := fileArg(c)
	if err != nil {
		return err
	}
	inst, err := integrations.ReadFile(path, c.String("format"))
	if err != nil {
		return err
	}
	cfg, err := solverConfig(c)
	if err != nil {
		return err
	}
	log, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	p, err := model.Build(*inst)
	if err != nil {
		return err
	}
	start := time.Now()
	res, err := opt.Solve(c.Context, p, cfg, opt.WithLogger(log))
	if err != nil {
		return err
	}
	rep := solveReport{
		Instance: inst.Name,
		Solution: model.FromResult(p, res),
		Elapsed:  time.Since(start).Round(time.Millisecond).String(),
		Host:     buildinfo.Host(c.Context),
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, rep)
	}
	return printSolution(c.App.Writer, rep)
}

func printSolution(w io.Writer, rep solveReport) error {
	sol := rep.Solution
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "VEHICLE\tDISTANCE\tDURATION\tPEAK LOAD\tNODES\n")
	for _, r := range sol.Routes {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%s\n", r.Vehicle, r.Distance, r.Duration, r.PeakLoad, strings.Join(r.Nodes, " "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\ninstance:    %s\n", rep.Instance)
	fmt.Fprintf(w, "cost:        %.4f\n", sol.Cost)
	fmt.Fprintf(w, "distance:    %.4f\n", sol.Distance)
	fmt.Fprintf(w, "routes:      %d\n", len(sol.Routes))
	fmt.Fprintf(w, "feasible:    %t\n", sol.Feasible)
	if !sol.Feasible {
		fmt.Fprintf(w, "violation:   %.4f (capacity %.4f, lateness %.4f)\n", sol.Violation, sol.CapacityExcess, sol.Lateness)
	}
	if len(sol.Unassigned) > 0 {
		fmt.Fprintf(w, "unassigned:  %s\n", strings.Join(sol.Unassigned, " "))
	}
	fmt.Fprintf(w, "stopped:     %s after %d generations\n", sol.Stats.StopReason, sol.Stats.Generations)
	fmt.Fprintf(w, "elapsed:     %s\n", rep.Elapsed)
	fmt.Fprintf(w, "seed:        %d\n", sol.Seed)
	_, err := fmt.Fprintf(w, "host:        %s\n", rep.Host)
	return err
}

type tspReport struct {
	Instance string            `json:"instance"`
	Tour     []string          `json:"tour"`
	Cost     float64           `json:"cost"`
	Seed     uint64            `json:"seed"`
	Stats    evol.Stats        `json:"stats"`
	Elapsed  string            `json:"elapsed"`
	Host     buildinfo.SysInfo `json:"host"`
}

// tspRequest keeps the node order of inst; the first depot is the start
// and end of the round trip.
func tspRequest(inst *model.Instance) (model.TSPRequest, error) {
	req := model.TSPRequest{CoordSystem: inst.CoordSystem, Metric: inst.Metric, RoundTrip: true}
	if len(inst.Nodes) == 0 {
		return req, errors.New("instance has no nodes")
	}
	depot := 0
	for i, n := range inst.Nodes {
		if n.Role == "depot" {
			depot = i
			break
		}
	}
	req.Start, req.End = &depot, &depot
	if inst.Distances != nil {
		req.Costs = inst.Distances
		return req, nil
	}
	for _, n := range inst.Nodes {
		if n.Location == nil {
			return req, fmt.Errorf("node %s has no coordinates", n.ID)
		}
		req.Points = append(req.Points, *n.Location)
	}
	return req, nil
}

func tspCmd(c *cli.Context) error {
	path, err := fileArg(c)
	if err != nil {
		return err
	}
	inst, err := integrations.ReadFile(path, "cvrplib")
	if err != nil {
		return err
	}
	vcfg, err := solverConfig(c)
	if err != nil {
		return err
	}
	cfg := tsp.DefaultConfig()
	cfg.Evol.Seed = vcfg.Evol.Seed
	cfg.Evol.Workers = vcfg.Evol.Workers
	if c.IsSet("generations") {
		cfg.Evol.MaxGenerations = vcfg.Evol.MaxGenerations
	}
	if c.IsSet("time") {
		cfg.Evol.TimeLimit = vcfg.Evol.TimeLimit
	}
	log, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	req, err := tspRequest(inst)
	if err != nil {
		return err
	}
	p, err := model.BuildTSP(req)
	if err != nil {
		return err
	}
	start := time.Now()
	tour, err := p.Solve(c.Context, cfg, tsp.WithLogger(log))
	if err != nil {
		return err
	}
	rep := tspReport{
		Instance: inst.Name,
		Cost:     tour.Cost,
		Seed:     tour.Seed,
		Stats:    tour.Stats,
		Elapsed:  time.Since(start).Round(time.Millisecond).String(),
		Host:     buildinfo.Host(c.Context),
	}
	for _, n := range tour.Nodes {
		rep.Tour = append(rep.Tour, inst.Nodes[n].ID)
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, rep)
	}
	w := c.App.Writer
	fmt.Fprintf(w, "instance:  %s\n", rep.Instance)
	fmt.Fprintf(w, "tour:      %s\n", strings.Join(rep.Tour, " "))
	fmt.Fprintf(w, "cost:      %.4f\n", rep.Cost)
	fmt.Fprintf(w, "stopped:   %s after %d generations\n", tour.Stats.StopReason, tour.Stats.Generations)
	fmt.Fprintf(w, "elapsed:   %s\n", rep.Elapsed)
	fmt.Fprintf(w, "seed:      %d\n", rep.Seed)
	_, err = fmt.Fprintf(w, "host:      %s\n", rep.Host)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
