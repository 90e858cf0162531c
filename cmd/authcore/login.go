package main

import (
	"context"
	"fmt"
	"strings"

	authcore "github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/plan"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

const demoPassword = "motdepasse-demo"

type demoUser struct {
	userID string
	plan   plan.Tag
	hash   string
}

// demoDirectory stands in for the account service: identifier → user, plan and
// password hash. The famille account is already migrated to Argon2id, the others
// still carry bcrypt hashes.
type demoDirectory struct {
	verifier password.Auto
	users    map[string]demoUser
	dummy    string
}

func newDemoDirectory(cost int) (*demoDirectory, error) {
	bc := password.NewBcrypt(cost)
	legacy, err := bc.Hash(demoPassword)
	if err != nil {
		return nil, err
	}
	a2, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return nil, err
	}
	migrated, err := a2.Hash(demoPassword)
	if err != nil {
		return nil, err
	}
	return &demoDirectory{
		verifier: password.Auto{Argon2: a2, Bcrypt: bc},
		users: map[string]demoUser{
			"solo@example.com":    {userID: "user-solo", plan: plan.Individuel, hash: legacy},
			"famille@example.com": {userID: "user-famille", plan: plan.Famille, hash: migrated},
			"essai@example.com":   {userID: "user-essai", plan: plan.Tag("essai"), hash: legacy},
		},
		dummy: legacy,
	}, nil
}

func (d *demoDirectory) lookup(identifier string) (demoUser, bool) {
	u, ok := d.users[strings.ToLower(strings.TrimSpace(identifier))]
	return u, ok
}

// check verifies pw for identifier with whichever scheme its hash uses. Unknown
// identifiers still pay for one bcrypt comparison.
func (d *demoDirectory) check(identifier, pw string) authcore.CredentialCheck {
	u, _ := d.lookup(identifier)
	return password.Check(d.verifier, u.hash, d.dummy, pw)
}

func newLoginCommand() *cobra.Command {
	var (
		identifier string
		secret     string
		device     string
		clientIP   string
		attempts   int
		devices    int
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Run logins for a demo account and print each outcome",
		Long: "Demo accounts solo@example.com (individuel), famille@example.com (famille) and " +
			"essai@example.com (unmanaged) share the password " + demoPassword + ".",
		RunE: func(cmd *cobra.Command, args []string) error {
			if attempts <= 0 || devices <= 0 {
				return fmt.Errorf("attempts and devices must be > 0")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			dir, err := newDemoDirectory(bcrypt.MinCost)
			if err != nil {
				return err
			}
			user, ok := dir.lookup(identifier)
			if !ok {
				user = demoUser{userID: "unknown:" + identifier}
			}

			rt, err := openRuntime(ctx, runtimeOptions{out: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			for d := 0; d < devices; d++ {
				deviceID := device
				if devices > 1 {
					deviceID = fmt.Sprintf("%s-%d", device, d+1)
				}
				for i := 0; i < attempts; i++ {
					res, err := rt.engine.Login(authcore.WithDeviceID(ctx, deviceID), authcore.LoginRequest{
						Identifier: identifier,
						UserID:     user.userID,
						PlanType:   user.plan,
						ClientIP:   clientIP,
						Check:      dir.check(identifier, secret),
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "device=%s attempt=%d status=%s http=%d message=%q\n",
						deviceID, i+1, res.Status, res.HTTPStatus(), res.Message)
					if res.NeedsDisconnection {
						for _, s := range res.ActiveSessions {
							fmt.Fprintf(out, "  active device=%s since=%s\n", s.DeviceID, s.CreatedAt.Format("15:04:05"))
						}
					}
					if res.Token != "" {
						if _, err := rt.engine.VerifySessionToken(ctx, res.Token); err != nil {
							return fmt.Errorf("issued token does not verify: %w", err)
						}
						fmt.Fprintf(out, "  token expires %s\n", res.TokenExpiresAt.Format("2006-01-02 15:04"))
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&identifier, "identifier", "famille@example.com", "Login identifier")
	cmd.Flags().StringVar(&secret, "password", demoPassword, "Password to try")
	cmd.Flags().StringVar(&device, "device", "tv", "Device identifier; suffixed when --devices > 1")
	cmd.Flags().StringVar(&clientIP, "ip", "192.0.2.1", "Client IP used as the rate-limit key")
	cmd.Flags().IntVar(&attempts, "attempts", 1, "Logins per device")
	cmd.Flags().IntVar(&devices, "devices", 1, "Distinct devices to log in")
	return cmd
}
