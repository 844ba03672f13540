package routing

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tts-server/internal/models"
	"tts-server/internal/pricing"
)

// ErrNoProviders возвращается, когда в каталоге нет ни одного провайдера.
var ErrNoProviders = errors.New("no providers available for routing")

// Context - входные данные для выбора провайдера.
type Context struct {
	CharacterCount int
	Preference     models.RoutingPreference
	// VoiceProvider - провайдер, к которому привязан выбранный голос.
	// Если задан, маршрутизация обязана выбрать именно его.
	VoiceProvider string
}

// Selection - результат маршрутизации.
type Selection struct {
	Provider  string `json:"provider"`
	Rationale string `json:"rationale"`
}

// Router выбирает провайдера по предпочтению пользователя и каталогу тарифов.
type Router struct {
	calc   *pricing.Calculator
	logger *zap.Logger
}

// NewRouter создает маршрутизатор поверх каталога тарифов.
func NewRouter(calc *pricing.Calculator, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{calc: calc, logger: logger.Named("Router")}
}

// SelectProvider выбирает провайдера для генерации.
// Голос жестко привязан к провайдеру, поэтому при заданном VoiceProvider выбор
// предрешен; предпочтение пользователя влияет только на rationale и на случаи,
// когда голос доступен у нескольких провайдеров (сейчас таких нет).
func (r *Router) SelectProvider(ctx context.Context, rctx Context) (Selection, error) {
	if err := ctx.Err(); err != nil {
		return Selection{}, err
	}

	if rctx.VoiceProvider != "" {
		if _, ok := r.calc.Rate(rctx.VoiceProvider); !ok {
			return Selection{}, fmt.Errorf("voice provider %q is not registered", rctx.VoiceProvider)
		}
		return Selection{
			Provider:  rctx.VoiceProvider,
			Rationale: fmt.Sprintf("voice is bound to provider %s", rctx.VoiceProvider),
		}, nil
	}

	providers := r.calc.Providers()
	if len(providers) == 0 {
		return Selection{}, ErrNoProviders
	}

	pref := rctx.Preference
	if !pref.Valid() {
		pref = models.RoutingPreferenceBalanced
	}

	best := providers[0]
	bestScore := r.score(best, pref)
	for _, name := range providers[1:] {
		if s := r.score(name, pref); s > bestScore {
			best = name
			bestScore = s
		}
	}

	r.logger.Debug("Provider selected",
		zap.String("provider", best),
		zap.String("preference", string(pref)),
		zap.Float64("score", bestScore))

	return Selection{
		Provider:  best,
		Rationale: fmt.Sprintf("preference %s: best score %.2f", pref, bestScore),
	}, nil
}

// score - чем выше, тем лучше провайдер подходит под предпочтение.
func (r *Router) score(provider string, pref models.RoutingPreference) float64 {
	rate, ok := r.calc.Rate(provider)
	if !ok {
		return -1
	}
	// Дешевизна нормируется грубо: тарифы порядка сотых за 1k символов.
	cheapness := 1.0 - rate.CostPer1kChars*10
	quality := float64(rate.RelativeQuality)
	speed := float64(rate.RelativeSpeed)

	switch pref {
	case models.RoutingPreferenceCost:
		// Вес дешевизны должен перевешивать разницу в качестве
		return cheapness*10 + quality
	case models.RoutingPreferenceQuality:
		return quality*3 + cheapness
	case models.RoutingPreferenceSpeed:
		return speed*3 + cheapness
	default: // balanced
		return cheapness + quality + speed
	}
}
