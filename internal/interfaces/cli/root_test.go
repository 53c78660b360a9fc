package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molbayes/internal/application/modeling"
	"github.com/turtacn/molbayes/internal/config"
	"github.com/turtacn/molbayes/internal/domain/molecule"
	"github.com/turtacn/molbayes/internal/testutil"
	"github.com/turtacn/molbayes/pkg/errors"
	mtypes "github.com/turtacn/molbayes/pkg/types/molecule"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	return writeFile(t, "config.yaml", "log:\n  level: error\nmodel:\n  parallelism: 2\n"+extra)
}

func writeJSONLines(t *testing.T, name string, values ...interface{}) string {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, v := range values {
		require.NoError(t, enc.Encode(v))
	}
	return writeFile(t, name, buf.String())
}

func alcoholDataset(t *testing.T) string {
	t.Helper()
	var values []interface{}
	for _, r := range testutil.AlcoholRecords() {
		values = append(values, r)
	}
	return writeJSONLines(t, "train.jsonl", values...)
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath, "--no-color"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func trainModel(t *testing.T, cfg string, extra ...string) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), "model.bayesian")
	args := append([]string{"train", "-i", alcoholDataset(t), "--out", out, "--kind", "ECFP4"}, extra...)
	_, _, err := runCLI(t, cfg, args...)
	require.NoError(t, err)
	return out
}

// ---------------------------------------------------------------------------
// root
// ---------------------------------------------------------------------------

func TestNewRootCommand_Structure(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "molbayes", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.Contains(t, cmd.Version, Version)

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"train", "predict", "inspect", "similarity", "models", "serve"} {
		assert.True(t, names[want], want)
	}

	for _, flag := range []string{"config", "log-level", "output", "verbose", "no-color", "timeout"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRoot_InvalidOutputFormat(t *testing.T) {
	_, _, err := runCLI(t, writeConfig(t, ""), "-o", "yaml", "inspect", "--model", "x")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestRoot_InvalidConfig(t *testing.T) {
	_, _, err := runCLI(t, writeConfig(t, "metrics:\n  namespace: \"\"\nevents:\n  enabled: true\n  acks: twice\n"), "inspect", "--model", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config initialization failed")
}

func TestGetCLIContext_Missing(t *testing.T) {
	cmd := NewRootCommand()
	_, err := GetCLIContext(cmd)
	assert.True(t, errors.IsCode(err, errors.CodeConflict))
}

// ---------------------------------------------------------------------------
// train / inspect
// ---------------------------------------------------------------------------

func TestTrain_WritesModelAndSummary(t *testing.T) {
	cfg := writeConfig(t, "")
	out := filepath.Join(t.TempDir(), "model.bayesian")

	stdout, _, err := runCLI(t, cfg, "-o", "json", "train",
		"-i", alcoholDataset(t), "--out", out,
		"--kind", "ECFP4", "--validate", "loo", "--title", "alcohols", "--comment", "a", "--comment", "b")
	require.NoError(t, err)

	var summary modeling.ModelSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.NotEmpty(t, summary.ModelID)
	assert.Equal(t, out, summary.Path)
	assert.Equal(t, "ECFP4", summary.Kind)
	assert.Equal(t, 6, summary.TrainingSize)
	assert.Equal(t, 3, summary.TrainingActives)
	assert.Equal(t, "alcohols", summary.Title)
	assert.Equal(t, []string{"a", "b"}, summary.Comments)
	require.NotNil(t, summary.ROC)
	assert.Equal(t, "leave-one-out", summary.ROC.Type)
	require.NotNil(t, summary.Truth)
	assert.Equal(t, 6, summary.Truth.TP+summary.Truth.FP+summary.Truth.TN+summary.Truth.FN)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Bayesian!(ECFP4,0,"))
	assert.Contains(t, string(data), "note:title=alcohols")
}

func TestTrain_UsesConfiguredDefaults(t *testing.T) {
	cfg := writeConfig(t, "  kind: ECFP2\n  folding: 256\n")
	out := filepath.Join(t.TempDir(), "model.bayesian")

	stdout, _, err := runCLI(t, cfg, "-o", "json", "train", "-i", alcoholDataset(t), "--out", out)
	require.NoError(t, err)

	var summary modeling.ModelSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.Equal(t, "ECFP2", summary.Kind)
	assert.Equal(t, 256, summary.Folding)
	assert.Nil(t, summary.ROC)
}

func TestTrain_FromStdin(t *testing.T) {
	data, err := os.ReadFile(alcoholDataset(t))
	require.NoError(t, err)

	cmd := NewRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(bytes.NewReader(data))
	out := filepath.Join(t.TempDir(), "m.bayesian")
	cmd.SetArgs([]string{"--config", writeConfig(t, ""), "-o", "json", "train", "-i", "-", "--out", out})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.FileExists(t, out)
}

func TestTrain_Errors(t *testing.T) {
	cfg := writeConfig(t, "")
	dataset := alcoholDataset(t)
	out := filepath.Join(t.TempDir(), "m.bayesian")

	_, _, err := runCLI(t, cfg, "train", "-i", dataset)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam), "no destination")

	_, _, err = runCLI(t, cfg, "train", "-i", dataset, "--out", out, "--kind", "FCFP4")
	assert.True(t, errors.IsCode(err, errors.ErrCodeFingerprintKindUnsupported))

	_, _, err = runCLI(t, cfg, "train", "-i", dataset, "--out", out, "--folding", "100")
	assert.True(t, errors.IsCode(err, errors.ErrCodeFoldingInvalid))

	_, _, err = runCLI(t, cfg, "train", "-i", writeFile(t, "bad.jsonl", "{oops"), "--out", out)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeInvalidFormat))

	_, _, err = runCLI(t, cfg, "train", "-i", writeFile(t, "empty.jsonl", ""), "--out", out)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTrainingEmpty))

	_, _, err = runCLI(t, cfg, "train", "-i", filepath.Join(t.TempDir(), "missing.jsonl"), "--out", out)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	_, _, err = runCLI(t, cfg, "train", "--persist", "-i", dataset)
	assert.True(t, errors.IsCode(err, errors.CodeConflict), "persist without a store")
	assert.NoFileExists(t, out)
}

func TestTrain_WritesMetricsTextfile(t *testing.T) {
	metrics := filepath.Join(t.TempDir(), "molbayes.prom")
	cfg := writeConfig(t, "metrics:\n  namespace: molbayes\n  textfile_path: "+metrics+"\n")
	trainModel(t, cfg, "--validate", "3")

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), `molbayes_model_trainings_total{kind="ECFP4",status="success"} 1`)
	assert.Contains(t, string(data), "molbayes_model_validation_auc")
}

func TestInspect(t *testing.T) {
	cfg := writeConfig(t, "")
	model := trainModel(t, cfg, "--validate", "5", "--title", "demo")

	stdout, _, err := runCLI(t, cfg, "-o", "json", "inspect", "--model", model, "--roc")
	require.NoError(t, err)
	var summary modeling.ModelSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.Equal(t, model, summary.Path)
	assert.Equal(t, 6, summary.TrainingSize)
	assert.Equal(t, "demo", summary.Title)
	require.NotNil(t, summary.ROC)
	assert.Equal(t, "five-fold", summary.ROC.Type)
	assert.Equal(t, len(summary.ROC.X), len(summary.ROC.Y))
	assert.NotEmpty(t, summary.ROC.X)

	text, _, err := runCLI(t, cfg, "inspect", "--model", model)
	require.NoError(t, err)
	assert.Contains(t, text, "ECFP4")
	assert.Contains(t, text, "five-fold")
	assert.Contains(t, text, "demo")
}

func TestInspect_Errors(t *testing.T) {
	cfg := writeConfig(t, "")

	_, _, err := runCLI(t, cfg, "inspect")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	_, _, err = runCLI(t, cfg, "inspect", "--model", "a", "--model-id", "b")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	_, _, err = runCLI(t, cfg, "inspect", "--model", writeFile(t, "junk.bayesian", "not a model\n"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelFormat))

	_, _, err = runCLI(t, cfg, "inspect", "--model-id", "m1")
	assert.True(t, errors.IsCode(err, errors.CodeConflict))
}

// ---------------------------------------------------------------------------
// predict
// ---------------------------------------------------------------------------

func TestPredict(t *testing.T) {
	cfg := writeConfig(t, "")
	model := trainModel(t, cfg)
	input := writeJSONLines(t, "mols.jsonl",
		testutil.ChainDTO("butane", 4, false),
		testutil.EthanolDTO(),
	)

	stdout, _, err := runCLI(t, cfg, "-o", "json", "predict", "--model", model, "-i", input, "--atoms")
	require.NoError(t, err)

	var preds []mtypes.Prediction
	require.NoError(t, json.Unmarshal([]byte(stdout), &preds))
	require.Len(t, preds, 2)
	assert.Equal(t, "butane", preds[0].Name)
	assert.Equal(t, "ethanol", preds[1].Name)
	assert.Greater(t, preds[1].Raw, preds[0].Raw)
	assert.Len(t, preds[1].Atoms, 3)
	assert.False(t, math.IsNaN(preds[1].Scaled))

	text, _, err := runCLI(t, cfg, "predict", "--model", model, "-i", input)
	require.NoError(t, err)
	assert.Contains(t, text, "butane")
	assert.Contains(t, text, "ethanol")
}

func TestPredict_Errors(t *testing.T) {
	cfg := writeConfig(t, "")
	model := trainModel(t, cfg)

	_, _, err := runCLI(t, cfg, "predict", "--model", model, "-i", writeJSONLines(t, "blank.jsonl", mtypes.Molecule{Name: "blank"}))
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))

	_, _, err = runCLI(t, cfg, "predict", "-i", writeJSONLines(t, "m.jsonl", testutil.EthanolDTO()))
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	_, _, err = runCLI(t, cfg, "predict", "--model", model)
	require.Error(t, err, "input is required")
}

// ---------------------------------------------------------------------------
// similarity / models
// ---------------------------------------------------------------------------

func TestSimilarity(t *testing.T) {
	cfg := writeConfig(t, "")
	ethanol := writeJSONLines(t, "ethanol.json", testutil.EthanolDTO())
	propanol := writeJSONLines(t, "propanol.json", testutil.ChainDTO("propanol", 3, true))

	stdout, _, err := runCLI(t, cfg, "-o", "json", "similarity", ethanol, ethanol, "--kind", "ECFP4")
	require.NoError(t, err)
	var res SimilarityOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, 1.0, res.Score)
	assert.Equal(t, "identical", res.Class)
	assert.Equal(t, "ECFP4", res.Kind)

	stdout, _, err = runCLI(t, cfg, "similarity", ethanol, propanol, "--folding", "1024")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ECFP6")
	assert.Contains(t, stdout, "folding 1024")
}

func TestSimilarity_Errors(t *testing.T) {
	cfg := writeConfig(t, "")
	ethanol := writeJSONLines(t, "ethanol.json", testutil.EthanolDTO())
	two := writeJSONLines(t, "two.json", testutil.EthanolDTO(), testutil.EthanolDTO())

	_, _, err := runCLI(t, cfg, "similarity", ethanol)
	require.Error(t, err)

	_, _, err = runCLI(t, cfg, "similarity", ethanol, two)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestModels_RequireStore(t *testing.T) {
	cfg := writeConfig(t, "")

	_, _, err := runCLI(t, cfg, "models", "list")
	assert.True(t, errors.IsCode(err, errors.CodeConflict))

	_, _, err = runCLI(t, cfg, "models", "delete", "m1")
	assert.True(t, errors.IsCode(err, errors.CodeConflict))
}

func TestFormatScore(t *testing.T) {
	assert.Equal(t, "0.5", formatScore(0.5))
	assert.Equal(t, "1", formatScore(1))
	assert.Equal(t, "-0.1235", formatScore(-0.12346))
	assert.Equal(t, "NaN", formatScore(math.NaN()))
}

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

func TestServe_Flags(t *testing.T) {
	cmd := NewServeCmd()
	assert.NotNil(t, cmd.Flags().Lookup("addr"))
	assert.NotNil(t, cmd.Flags().Lookup("watch"))
}

func TestServe_StopsWhenContextDone(t *testing.T) {
	cfg := writeConfig(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfg, "serve", "--addr", "127.0.0.1:0", "--watch"})
	assert.NoError(t, cmd.ExecuteContext(ctx))
}

func TestServe_AddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, _, err = runCLI(t, writeConfig(t, ""), "serve", "--addr", ln.Addr().String())
	assert.Error(t, err)
}

func TestModelDefaults(t *testing.T) {
	d, err := modelDefaults(&config.Config{Model: config.ModelConfig{Kind: "ecfp6", Folding: 512, Validation: "5", Parallelism: 3}})
	require.NoError(t, err)
	assert.Equal(t, molecule.ECFP6, d.Kind)
	assert.Equal(t, 512, d.Folding)
	assert.Equal(t, "5", d.Validation)
	assert.Equal(t, 3, d.Parallelism)

	_, err = modelDefaults(&config.Config{Model: config.ModelConfig{Kind: "FCFP4"}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeFingerprintKindUnsupported))
}
