package flows

import (
	"fmt"
	"math"
	"time"

	"github.com/MrEthical07/authcore/plan"
)

// User-facing messages. They are specific on purpose: a locked account is reported
// as locked even to someone who only guesses passwords.
const (
	MessageAuthenticated = "Authentification réussie."
	MessageWelcome       = "Connexion réussie."
)

func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// LockedMessage tells the user the account is locked and for how long.
func LockedMessage(retryAfter time.Duration) string {
	return fmt.Sprintf("Compte VERROUILLÉ suite à trop de tentatives échouées. Réessayez dans %d s.", seconds(retryAfter))
}

// InvalidCredentialsMessage reports a wrong password and the attempts left.
func InvalidCredentialsMessage(remaining int) string {
	return fmt.Sprintf("Identifiants incorrects. %d tentative(s) restante(s).", remaining)
}

// RateLimitedMessage asks the caller to slow down.
func RateLimitedMessage(retryAfter time.Duration) string {
	return fmt.Sprintf("Trop de requêtes. Réessayez dans %d s.", seconds(retryAfter))
}

// DeviceLimitMessage explains the device quota of p.
func DeviceLimitMessage(p plan.Policy, active int) string {
	return fmt.Sprintf("Limite d'appareils atteinte pour le forfait %s (%d/%d). Déconnectez un appareil pour continuer.",
		p.Tag, active, p.MaxDevices)
}
