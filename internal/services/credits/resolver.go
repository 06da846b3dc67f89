package credits

import "github.com/magabrotheeeer/credit-engine/internal/models"

// Resolve выбирает источник оплаты в строгом порядке: подписка, пробные
// кредиты, токены. Аккаунт не изменяется. Подписчик никогда не тратит
// trial и токены, а после отмены подписки пользователь возвращается к остаткам.
func Resolve(a *models.Account) (models.CreditType, bool) {
	switch {
	case a.SubscriptionStatus.Authorizing():
		return models.CreditSubscription, true
	case a.TrialRemaining > 0:
		return models.CreditTrial, true
	case a.TokenBalance >= 1:
		return models.CreditToken, true
	default:
		return "", false
	}
}
