package pricing

import (
	"fmt"
	"math"

	"tts-server/internal/models"
)

// CreditsPerCostUnit - фиксированный курс конвертации стоимости в кредиты.
// Изменение курса - изменение политики, поэтому значение именованное,
// а не разбросанное по коду литералами.
const CreditsPerCostUnit = 100

// floatTolerance поглощает двоичный шум при суммировании стоимостей чанков:
// без него сумма 0.015+0.020+0.025 оказывается чуть выше 0.06 и округляется
// в лишний кредит.
const floatTolerance = 1e-9

// CostToCredits конвертирует денежную стоимость в кредиты по фиксированному курсу.
// Округление всегда вверх: пользователь платит за каждый начатый кредит.
func CostToCredits(cost float64) int64 {
	return int64(math.Ceil(cost*CreditsPerCostUnit - floatTolerance))
}

// Context - входные данные для расчета стоимости.
type Context struct {
	CharacterCount int
	ChunkCount     int
	Preference     models.RoutingPreference
}

// ProviderEstimate - оценка стоимости генерации у конкретного провайдера.
type ProviderEstimate struct {
	Provider string  `json:"provider"`
	Cost     float64 `json:"cost"`
	Credits  int64   `json:"credits"`
}

// ProviderRate - тариф провайдера.
type ProviderRate struct {
	CostPer1kChars float64
	// RelativeQuality и RelativeSpeed используются маршрутизацией, но живут
	// рядом с тарифом, чтобы каталог провайдеров был в одном месте.
	RelativeQuality int
	RelativeSpeed   int
}

// Calculator считает стоимость по статической таблице тарифов.
type Calculator struct {
	order []string
	rates map[string]ProviderRate
}

// NewCalculator создает калькулятор с тарифами провайдеров.
// Порядок регистрации сохраняется и определяет порядок оценок в выдаче.
func NewCalculator() *Calculator {
	c := &Calculator{rates: make(map[string]ProviderRate)}
	// Тарифы за 1000 символов. Порядок регистрации намеренно не отсортирован
	// по цене: "лучшая" оценка - первая в списке, как её вернул калькулятор.
	c.register("openai", ProviderRate{CostPer1kChars: 0.015, RelativeQuality: 2, RelativeSpeed: 3})
	c.register("elevenlabs", ProviderRate{CostPer1kChars: 0.030, RelativeQuality: 3, RelativeSpeed: 2})
	return c
}

func (c *Calculator) register(name string, rate ProviderRate) {
	c.order = append(c.order, name)
	c.rates[name] = rate
}

// Providers возвращает имена провайдеров в порядке регистрации.
func (c *Calculator) Providers() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Rate возвращает тариф провайдера.
func (c *Calculator) Rate(provider string) (ProviderRate, bool) {
	r, ok := c.rates[provider]
	return r, ok
}

// CalculateEstimate считает оценку стоимости для одного провайдера.
func (c *Calculator) CalculateEstimate(pctx Context, provider string) (ProviderEstimate, error) {
	rate, ok := c.rates[provider]
	if !ok {
		return ProviderEstimate{}, fmt.Errorf("unknown provider %q", provider)
	}
	cost := float64(pctx.CharacterCount) / 1000.0 * rate.CostPer1kChars
	return ProviderEstimate{
		Provider: provider,
		Cost:     cost,
		Credits:  CostToCredits(cost),
	}, nil
}

// CalculateAllProviderEstimates возвращает оценки по всем провайдерам
// в порядке регистрации (НЕ отсортировано по цене).
func (c *Calculator) CalculateAllProviderEstimates(pctx Context) []ProviderEstimate {
	out := make([]ProviderEstimate, 0, len(c.order))
	for _, name := range c.order {
		est, err := c.CalculateEstimate(pctx, name)
		if err != nil {
			continue
		}
		out = append(out, est)
	}
	return out
}
