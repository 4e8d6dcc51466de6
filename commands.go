package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/occgrid/internal/cloud"
	"github.com/banshee-data/occgrid/internal/config"
	"github.com/banshee-data/occgrid/internal/mapstore"
	"github.com/banshee-data/occgrid/internal/monitoring"
	"github.com/banshee-data/occgrid/internal/occmap"
	"github.com/banshee-data/occgrid/internal/report"
	"github.com/banshee-data/occgrid/internal/security"
)

func handlePopulate(args []string) {
	fs := flag.NewFlagSet("populate", flag.ExitOnError)
	cloudPath := fs.String("cloud", "", "Point cloud file, one 'time x y z' record per line (required)")
	trajPath := fs.String("trajectory", "", "Sensor trajectory file, 'time x y z' per line (optional)")
	storePath := fs.String("store", "occgrid.db", "Map store database path")
	configPath := fs.String("config", "", "JSON tuning config file (flags override its values)")
	resolution := fs.Float64("resolution", 0.25, "Voxel edge length in metres")
	hitProb := fs.Float64("hit", 0.7, "Hit probability")
	missProb := fs.Float64("miss", 0.4, "Miss probability")
	voxelMean := fs.Bool("voxel-mean", false, "Track sub-voxel mean sample positions")
	maxRange := fs.Float64("max-range", 0, "Clip rays longer than this range (0 disables)")
	maxChunks := fs.Int("max-chunks", 0, "Chunk allocation budget (0 is unbounded)")
	fs.Parse(args)

	if *cloudPath == "" {
		fmt.Fprintln(os.Stderr, "populate: --cloud is required")
		fs.Usage()
		os.Exit(1)
	}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	cfg := occmap.DefaultMapConfig()
	cfg.Resolution = tuning.GetResolution()
	cfg.RegionVoxelDims = tuning.GetRegionVoxelDims()
	cfg.HitProbability = tuning.GetHitProbability()
	cfg.MissProbability = tuning.GetMissProbability()
	cfg.OccupancyThresholdProbability = tuning.GetOccupancyThreshold()
	cfg.MinNodeProbability = tuning.GetMinNodeProbability()
	cfg.MaxNodeProbability = tuning.GetMaxNodeProbability()
	cfg.SaturateAtMin = tuning.GetSaturateAtMin()
	cfg.SaturateAtMax = tuning.GetSaturateAtMax()
	cfg.MaxChunks = tuning.GetMaxChunks()
	if tuning.GetVoxelMean() {
		cfg.Flags |= occmap.MapVoxelMean
	}
	clipRange := tuning.GetMaxRange()
	batchSize := tuning.GetBatchSize()

	// Explicit flags override the config file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "resolution":
			cfg.Resolution = *resolution
		case "hit":
			cfg.HitProbability = *hitProb
		case "miss":
			cfg.MissProbability = *missProb
		case "voxel-mean":
			if *voxelMean {
				cfg.Flags |= occmap.MapVoxelMean
			} else {
				cfg.Flags &^= occmap.MapVoxelMean
			}
		case "max-range":
			clipRange = *maxRange
		case "max-chunks":
			cfg.MaxChunks = *maxChunks
		}
	})

	m, err := occmap.NewMap(cfg)
	if err != nil {
		log.Fatalf("invalid map configuration: %v", err)
	}
	if clipRange > 0 {
		m.SetRayFilter(occmap.ClipRangeFilter(clipRange))
	}

	var trajectory *cloud.Trajectory
	if *trajPath != "" {
		trajectory, err = cloud.LoadTrajectory(*trajPath)
		if err != nil {
			log.Fatalf("failed to load trajectory: %v", err)
		}
	}
	loader, err := cloud.OpenTextLoader(*cloudPath, trajectory, r3.Vec{})
	if err != nil {
		log.Fatalf("failed to open cloud: %v", err)
	}
	defer loader.Close()

	rays := make([]r3.Vec, 0, 2*batchSize)
	totalRays := 0
	for {
		samples, err := loader.Next(batchSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatalf("failed to read cloud: %v", err)
		}
		rays = rays[:0]
		for _, s := range samples {
			rays = append(rays, s.Origin, s.Point)
		}
		n, err := m.IntegrateRays(rays, occmap.RfDefault)
		totalRays += n
		if err != nil {
			log.Fatalf("integration stopped after %d rays: %v", totalRays, err)
		}
		if totalRays%(batchSize*25) == 0 {
			monitoring.Logf("integrated %d rays, %d chunks", totalRays, m.ChunkCount())
		}
	}
	monitoring.Logf("integrated %d rays into %d chunks (%d occupied voxels)",
		totalRays, m.ChunkCount(), m.OccupiedCount())

	store, err := mapstore.Open(*storePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()
	id, err := store.Save(m)
	if err != nil {
		log.Fatalf("failed to save session: %v", err)
	}
	monitoring.Logf("saved session %s to %s", id, *storePath)
	fmt.Println(id)
}

func handleInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	storePath := fs.String("store", "occgrid.db", "Map store database path")
	session := fs.String("session", "", "Session id (omit to list all sessions)")
	fs.Parse(args)

	store, err := mapstore.Open(*storePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	if *session != "" {
		info, err := store.Info(*session)
		if err != nil {
			log.Fatalf("failed to read session: %v", err)
		}
		printSession(info)
		return
	}

	sessions, err := store.Sessions()
	if err != nil {
		log.Fatalf("failed to list sessions: %v", err)
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions")
		return
	}
	for _, info := range sessions {
		printSession(info)
	}
}

func printSession(info mapstore.SessionInfo) {
	fmt.Printf("%s  created=%s  resolution=%.3fm  regions=%dx%dx%d  chunks=%d  stamp=%d\n",
		info.ID, info.CreatedAt.Format("2006-01-02 15:04:05"),
		info.Config.Resolution,
		info.Config.RegionVoxelDims[0], info.Config.RegionVoxelDims[1], info.Config.RegionVoxelDims[2],
		info.ChunkCount, info.Stamp)
}

func handleExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	storePath := fs.String("store", "occgrid.db", "Map store database path")
	session := fs.String("session", "", "Session id (required)")
	outPath := fs.String("out", "", "Output point cloud file (defaults to cloud-<session>.txt)")
	fs.Parse(args)

	if *session == "" {
		fmt.Fprintln(os.Stderr, "export: --session is required")
		fs.Usage()
		os.Exit(1)
	}
	out := *outPath
	if out == "" {
		out = fmt.Sprintf("cloud-%s.txt", security.SanitizeFilename(*session))
	}
	if err := security.ValidateExportPath(out); err != nil {
		log.Fatalf("refusing export path: %v", err)
	}

	m := loadSession(*storePath, *session)

	f, err := os.Create(out)
	if err != nil {
		log.Fatalf("failed to create output: %v", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	points := m.ExtractCloud(nil)
	for _, p := range points {
		fmt.Fprintf(w, "%f %f %f\n", p.X, p.Y, p.Z)
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("failed to write output: %v", err)
	}
	monitoring.Logf("exported %d occupied voxels to %s", len(points), out)
}

func handleServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	storePath := fs.String("store", "occgrid.db", "Map store database path")
	session := fs.String("session", "", "Session id (required)")
	listen := fs.String("listen", ":8080", "Listen address")
	fs.Parse(args)

	if *session == "" {
		fmt.Fprintln(os.Stderr, "serve: --session is required")
		fs.Usage()
		os.Exit(1)
	}

	store, err := mapstore.Open(*storePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()
	m, err := store.Load(*session)
	if err != nil {
		log.Fatalf("failed to load session: %v", err)
	}
	r := report.New(m)

	mux := http.NewServeMux()
	mux.Handle("/slice", r.SliceChartHandler())
	mux.Handle("/histogram", r.HistogramHandler())
	mux.Handle("/api/sessions", store.SessionsHandler())
	monitoring.Logf("serving session %s on %s (/slice, /histogram, /api/sessions)", *session, *listen)
	if err := http.ListenAndServe(*listen, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func handleMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	storePath := fs.String("store", "occgrid.db", "Map store database path")
	down := fs.Bool("down", false, "Roll back the most recent migration")
	fs.Parse(args)

	store, err := mapstore.Open(*storePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	if *down {
		if err := store.MigrateDown(); err != nil {
			log.Fatalf("migrate down failed: %v", err)
		}
	}
	version, dirty, err := store.MigrateVersion()
	if err != nil {
		log.Fatalf("failed to read schema version: %v", err)
	}
	fmt.Printf("schema version %d (dirty=%v)\n", version, dirty)
}

func loadSession(storePath, session string) *occmap.Map {
	store, err := mapstore.Open(storePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()
	m, err := store.Load(session)
	if err != nil {
		log.Fatalf("failed to load session: %v", err)
	}
	return m
}
