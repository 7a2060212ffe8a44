package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/askiada/go-fidder/config"
	"github.com/askiada/go-fidder/internal/fidder"
	"github.com/askiada/go-fidder/internal/gpu"
	"github.com/askiada/go-fidder/internal/journal"
	"github.com/askiada/go-fidder/internal/manifest"
	"github.com/askiada/go-fidder/internal/status"
	"github.com/askiada/go-fidder/pkg/fiducials"
	"github.com/askiada/go-fidder/pkg/pipeline"
	"github.com/askiada/go-fidder/pkg/pipeline/drawer"
	"github.com/askiada/go-fidder/pkg/pipeline/measure"
	"github.com/askiada/go-fidder/pkg/pipeline/model"
)

const envFile = "fidder.env"

var (
	// populated at compile time based on data injected by the makefile
	version   = "unset"
	timestamp = "unset"
)

func main() {
	env, err := config.Load(envFile)
	if err != nil {
		log.Fatal(err)
	}

	var logger *zap.Logger
	switch env.Mode {
	case "dev":
		logger, err = zap.NewDevelopment()
	case "prod":
		logger, err = zap.NewProduction()
	default:
		err = fmt.Errorf("Invalid 'mode' flag: %s", env.Mode)
	}
	if err != nil {
		log.Fatal(err)
	}
	sugar := logger.Sugar()

	cfg := config.Config{
		Logger:      sugar,
		Environment: env,
	}

	sugar.Infof("Version: %s Timestamp: %s", version, timestamp)
	sugar.Info(env)

	err = run(cfg)
	_ = logger.Sync()
	if err != nil {
		sugar.Errorf("%+v", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) (err error) {
	env, sugar := cfg.Environment, cfg.Logger
	runID := uuid.New().String()
	sugar = sugar.With("run", runID)

	input, err := manifest.Load(env.InputManifest, sugar)
	if err != nil {
		return err
	}
	sugar.Infof("loaded %d tilt-series from %s", input.Len(), env.InputManifest)

	pool, err := gpu.NewPool(env.GPUList)
	if err != nil {
		return err
	}
	sugar.Infof("GPU devices: %s", strings.Join(pool.Devices(), ","))

	outputs := fiducials.NewOutputs(input.Info(), sugar)
	journals, err := openJournals(env, outputs, sugar)
	if err != nil {
		return err
	}
	defer func() {
		for _, j := range journals {
			err = multierr.Append(err, j.Close())
		}
	}()

	runner := &fidder.Command{
		Binary:     env.FidderBin,
		Activation: env.FidderActivation,
		CudaLib:    env.CudaLib,
		Logger:     sugar,
	}
	proto, err := fiducials.New(fiducials.Config{
		ProbThreshold: env.ProbThreshold,
		DoEvenOdd:     env.DoEvenOdd,
		SaveMaskStack: env.SaveMaskStack,
		WorkDir:       env.WorkDir,
		Streaming:     env.Streaming,
		PollInterval:  env.PollInterval(),
	}, input, runner, outputs, sugar)
	if err != nil {
		return err
	}

	msr := measure.NewDefaultMeasure()
	hooks := []model.PipelineOption{measure.PipelineMeasure(msr)}
	if env.GraphFile != "" {
		hooks = append(hooks, drawer.PipelineDrawer(drawer.NewDOTDrawer(env.GraphFile), msr))
	}
	pipe, err := pipeline.New(
		pipeline.Concurrency(env.Parallelism),
		pipeline.GPUs(pool),
		pipeline.Logger(sugar),
		pipeline.Hooks(hooks...),
	)
	if err != nil {
		return err
	}

	err = proto.Start(pipe)
	if err != nil {
		return err
	}

	if env.StatusAddr != "" {
		shutdown := status.Serve(config.Config{Logger: sugar, Environment: env}, env.StatusAddr, &status.Run{
			ID:          runID,
			Streaming:   env.Streaming,
			StartedAt:   time.Now(),
			Steps:       pipe,
			Collections: outputs,
		})
		defer shutdown()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = pipe.Run(ctx)

	for stage, avg := range msr.StageAverages() {
		sugar.Infof("stage %s: %s on average", stage, avg)
	}
	for tsID, tsErr := range proto.Failed() {
		sugar.Warnf("tsId = %s failed: %v", tsID, tsErr)
	}
	sugar.Infof("outputs: %v", outputs.Sizes())

	return err
}

// openJournals attaches a journal to every output collection. With resume, the collections
// saved by a previous run are restored first; otherwise previous journals are discarded.
func openJournals(env *config.Environment, outputs *fiducials.Outputs, sugar *zap.SugaredLogger) ([]*journal.Journal, error) {
	dir := filepath.Join(env.WorkDir, "journal")
	if !env.Resume {
		err := os.RemoveAll(dir)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to remove %s", dir)
		}
	}

	res := []*journal.Journal{}
	for _, name := range []string{fiducials.OutputName, fiducials.FailedOutputName} {
		j, err := journal.Open(dir, name)
		if err != nil {
			return nil, err
		}
		res = append(res, j)

		if env.Resume && j.Size() > 0 {
			state, err := j.Replay()
			if err != nil {
				return nil, err
			}
			if state.Created {
				outputs.Restore(name, state.Info, state.Items, state.Closed)
			}
			sugar.Infof("journal %s: %d records, %d tilt-series", name, j.Size(), len(state.Items))
		}
		outputs.Record(name, j)
	}

	return res, nil
}
