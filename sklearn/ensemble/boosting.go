package ensemble

import (
	"math"
	"math/rand"

	"github.com/YuminosukeSato/churnlab/core/model"
	"github.com/YuminosukeSato/churnlab/metrics"
	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/YuminosukeSato/churnlab/pkg/log"
	"github.com/YuminosukeSato/churnlab/sklearn/tree"
	"gonum.org/v1/gonum/mat"
)

// GradientBoostingClassifier はlog-loss（二値）の勾配ブースティング分類器
//
// 各ステージで負の勾配（y - p）に回帰木を当てはめ、
// 葉の値はニュートン法の1ステップ sum(r) / sum(p(1-p)) で決める。
type GradientBoostingClassifier struct {
	state *model.StateManager

	nEstimators     int
	learningRate    float64
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	subsample       float64
	randomState     int64

	estimators_         []*tree.DecisionTreeRegressor
	initScore_          float64
	classes_            []int
	featureImportances_ []float64
	trainLoss_          []float64
}

// GradientBoostingOption はGradientBoostingClassifierの設定関数
type GradientBoostingOption func(*GradientBoostingClassifier)

// WithStages はブースティングのステージ数を設定する
func WithStages(n int) GradientBoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.nEstimators = n }
}

// WithLearningRate は各ステージの寄与を縮小する学習率を設定する
func WithLearningRate(lr float64) GradientBoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.learningRate = lr }
}

// WithBoostingMaxDepth は各回帰木の最大深さを設定する
func WithBoostingMaxDepth(d int) GradientBoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.maxDepth = d }
}

// WithBoostingMinSamplesLeaf は各回帰木の葉の最小サンプル数を設定する
func WithBoostingMinSamplesLeaf(n int) GradientBoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.minSamplesLeaf = n }
}

// WithSubsample は各ステージで使うサンプルの割合を設定する (0, 1]
func WithSubsample(f float64) GradientBoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.subsample = f }
}

// WithBoostingRandomState は乱数シードを設定する
func WithBoostingRandomState(seed int64) GradientBoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.randomState = seed }
}

// NewGradientBoostingClassifier はscikit-learnと同じデフォルト値で作成する
// (n_estimators=100, learning_rate=0.1, max_depth=3, subsample=1.0)
func NewGradientBoostingClassifier(opts ...GradientBoostingOption) *GradientBoostingClassifier {
	gb := &GradientBoostingClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		learningRate:    0.1,
		maxDepth:        3,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		subsample:       1.0,
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(gb)
	}
	return gb
}

func (gb *GradientBoostingClassifier) validate() error {
	if gb.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", gb.nEstimators)
	}
	if gb.learningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be > 0", gb.learningRate)
	}
	if gb.subsample <= 0 || gb.subsample > 1 {
		return errors.NewValidationError("subsample", "must be in (0, 1]", gb.subsample)
	}
	return nil
}

// binaryTargets は y を {0, 1} に変換し、元のクラスラベルを返す
func binaryTargets(y mat.Matrix) ([]float64, []int, error) {
	r, _ := y.Dims()
	var classes []int
	for i := 0; i < r; i++ {
		v := y.At(i, 0)
		if v != math.Trunc(v) {
			return nil, nil, errors.NewValueError("GradientBoostingClassifier.Fit", "class labels must be integers")
		}
		found := false
		for _, c := range classes {
			if c == int(v) {
				found = true
			}
		}
		if !found {
			classes = append(classes, int(v))
		}
	}
	switch {
	case len(classes) < 2:
		return nil, nil, errors.Wrap(errors.ErrSingleClass, "GradientBoostingClassifier.Fit")
	case len(classes) > 2:
		return nil, nil, errors.NewValidationError("y", "only binary classification is supported", len(classes))
	}
	if classes[0] > classes[1] {
		classes[0], classes[1] = classes[1], classes[0]
	}

	yb := make([]float64, r)
	for i := 0; i < r; i++ {
		if int(y.At(i, 0)) == classes[1] {
			yb[i] = 1
		}
	}
	return yb, classes, nil
}

// Fit は勾配ブースティングで回帰木を順に学習する
func (gb *GradientBoostingClassifier) Fit(X, y mat.Matrix) error {
	if err := gb.validate(); err != nil {
		return err
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("GradientBoostingClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if yr, _ := y.Dims(); yr != r {
		return errors.NewDimensionError("GradientBoostingClassifier.Fit", r, yr, 0)
	}

	yb, classes, err := binaryTargets(y)
	if err != nil {
		return err
	}

	logger := log.GetLoggerWithName("ensemble.boosting")
	gb.state.Reset()

	// 初期値は陽性クラスの事前確率の対数オッズ
	var prior float64
	for _, v := range yb {
		prior += v
	}
	prior /= float64(r)
	gb.initScore_ = math.Log(prior / (1 - prior))

	raw := make([]float64, r)
	for i := range raw {
		raw[i] = gb.initScore_
	}
	prob := make([]float64, r)
	residual := mat.NewDense(r, 1, nil)

	seed := gb.randomState
	if seed < 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))
	nSub := int(gb.subsample * float64(r))
	if nSub < 1 {
		nSub = 1
	}

	yVec := mat.NewVecDense(r, yb)
	gb.estimators_ = make([]*tree.DecisionTreeRegressor, 0, gb.nEstimators)
	gb.trainLoss_ = make([]float64, 0, gb.nEstimators)

	for m := 0; m < gb.nEstimators; m++ {
		for i := 0; i < r; i++ {
			prob[i] = errors.Sigmoid(raw[i])
			residual.Set(i, 0, yb[i]-prob[i])
		}

		samples := make([]int, r)
		for i := range samples {
			samples[i] = i
		}
		if nSub < r {
			samples = rng.Perm(r)[:nSub]
		}

		reg := tree.NewDecisionTreeRegressor(
			tree.WithMaxDepth(gb.maxDepth),
			tree.WithMinSamplesSplit(gb.minSamplesSplit),
			tree.WithMinSamplesLeaf(gb.minSamplesLeaf),
			tree.WithRandomState(rng.Int63()),
		)
		reg.SetLeafValueFunc(func(leaf []int) float64 {
			var num, den float64
			for _, s := range leaf {
				num += residual.At(s, 0)
				den += prob[s] * (1 - prob[s])
			}
			if math.Abs(den) < 1e-150 {
				return 0
			}
			return num / den
		})
		if err := reg.FitSamples(X, residual, samples); err != nil {
			return errors.Wrapf(err, "GradientBoostingClassifier.Fit: stage %d", m)
		}

		update, err := reg.Predict(X)
		if err != nil {
			return err
		}
		for i := 0; i < r; i++ {
			raw[i] += gb.learningRate * update.At(i, 0)
			prob[i] = errors.Sigmoid(raw[i])
		}
		gb.estimators_ = append(gb.estimators_, reg)

		loss, err := metrics.BinaryLogLoss(yVec, mat.NewVecDense(r, prob))
		if err != nil {
			return err
		}
		if err := errors.CheckScalar("GradientBoostingClassifier.Fit", loss, m); err != nil {
			return err
		}
		gb.trainLoss_ = append(gb.trainLoss_, loss)
		if (m+1)%10 == 0 {
			logger.Debug("Boosting progress",
				log.IterationKey, m+1,
				log.LossKey, loss,
			)
		}
	}

	gb.classes_ = classes
	gb.featureImportances_ = meanImportances(c, len(gb.estimators_), func(i int) []float64 {
		return gb.estimators_[i].GetFeatureImportances()
	})
	gb.state.SetDimensions(c, r)
	gb.state.SetFitted()
	return nil
}

// DecisionFunction は生のスコア（対数オッズ）を n×1 で返す
func (gb *GradientBoostingClassifier) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	if err := gb.state.RequireFitted("GradientBoostingClassifier", "DecisionFunction"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := gb.state.CheckFeatures("GradientBoostingClassifier.DecisionFunction", c); err != nil {
		return nil, err
	}

	raw := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		raw.Set(i, 0, gb.initScore_)
	}
	for _, est := range gb.estimators_ {
		update, err := est.Predict(X)
		if err != nil {
			return nil, err
		}
		for i := 0; i < r; i++ {
			raw.Set(i, 0, raw.At(i, 0)+gb.learningRate*update.At(i, 0))
		}
	}
	return raw, nil
}

// PredictProba は各クラスの確率を n×2 で返す
func (gb *GradientBoostingClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	raw, err := gb.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	r, _ := raw.Dims()
	out := mat.NewDense(r, 2, nil)
	for i := 0; i < r; i++ {
		p := errors.Sigmoid(raw.At(i, 0))
		out.Set(i, 0, 1-p)
		out.Set(i, 1, p)
	}
	return out, nil
}

// Predict は確率が最大のクラスを返す
func (gb *GradientBoostingClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := gb.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return argmax(proba, gb.classes_), nil
}

// Score は正解率を返す
func (gb *GradientBoostingClassifier) Score(X, y mat.Matrix) (float64, error) {
	return accuracy(gb, X, y)
}

// IsFitted は学習済みかどうかを返す
func (gb *GradientBoostingClassifier) IsFitted() bool { return gb.state.IsFitted() }

// Classes は学習時のクラスラベルを返す
func (gb *GradientBoostingClassifier) Classes() []int { return append([]int(nil), gb.classes_...) }

// GetFeatureImportances はステージごとの重要度の平均を返す
func (gb *GradientBoostingClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), gb.featureImportances_...)
}

// TrainLoss は各ステージ後の学習データに対するlog-lossを返す
func (gb *GradientBoostingClassifier) TrainLoss() []float64 {
	return append([]float64(nil), gb.trainLoss_...)
}

// GetParams はハイパーパラメータを返す
func (gb *GradientBoostingClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      gb.nEstimators,
		"learning_rate":     gb.learningRate,
		"max_depth":         gb.maxDepth,
		"min_samples_split": gb.minSamplesSplit,
		"min_samples_leaf":  gb.minSamplesLeaf,
		"subsample":         gb.subsample,
		"random_state":      gb.randomState,
	}
}
