package router

import (
	"sync"
	"time"

	"github.com/oksasatya/go-signup-flow/config"
	"github.com/oksasatya/go-signup-flow/internal/application"
	"github.com/oksasatya/go-signup-flow/internal/container"
	"github.com/oksasatya/go-signup-flow/internal/infrastructure/search"
	handlers "github.com/oksasatya/go-signup-flow/internal/interface/http"
	"github.com/oksasatya/go-signup-flow/internal/notification"
	"github.com/oksasatya/go-signup-flow/internal/router/modules"
	mailtpl "github.com/oksasatya/go-signup-flow/pkg/mailer/templates"
)

type SignupModuleDeps struct {
	Service *application.Service
	Handler *handlers.SignupHandler
}

var (
	metricsOnce sync.Once
	metrics     *application.MetricsObserver
)

// signupMetrics publishes the expvar maps once per process.
func signupMetrics() *application.MetricsObserver {
	metricsOnce.Do(func() { metrics = application.NewMetricsObserver("signup") })
	return metrics
}

// buildEmailNotifier prefers the queue, then direct Mailgun, then the log.
func buildEmailNotifier(cfg *config.Config) notification.Notifier {
	logger := container.GetLogger()
	switch {
	case !cfg.MailSendEnabled:
		logger.Warn("MAIL_SEND_ENABLED=false; verification codes are only logged")
		return notification.NewLogNotifier(logger, cfg)
	case container.GetRabbitPub() != nil:
		return notification.NewQueueNotifier(container.GetRabbitPub(), cfg)
	case container.GetMailgun() != nil:
		return notification.NewMailgunNotifier(container.GetMailgun(), cfg, mailtpl.NewCachedResolver(mailtpl.IPAPIResolver{}, time.Hour))
	default:
		logger.Warn("no mail transport configured; verification codes are only logged")
		return notification.NewLogNotifier(logger, cfg)
	}
}

// buildSMSNotifier returns nil when the SMS channel is off.
func buildSMSNotifier(cfg *config.Config) notification.Notifier {
	if !cfg.SMSEnabled {
		return nil
	}
	if send := container.GetSMSFunc(); send != nil {
		return notification.NewSMSNotifier(send, cfg.SMSMessage)
	}
	if !cfg.IsProduction() {
		return notification.NewLogNotifier(container.GetLogger(), nil)
	}
	container.GetLogger().Warn("SMS_ENABLED=true but no SMS gateway installed; SMS channel disabled")
	return nil
}

func buildSignupDeps() (SignupModuleDeps, error) {
	cfg := container.GetConfig()
	logger := container.GetLogger()

	policy, err := application.NewPolicy(cfg)
	if err != nil {
		return SignupModuleDeps{}, err
	}

	opts := []application.Option{
		application.WithLogger(logger),
		application.WithObserver(application.LogObserver{Logger: logger}),
	}
	if cfg.DebugMetricsEnabled {
		opts = append(opts, application.WithObserver(signupMetrics()))
	}
	if es := container.GetES(); es != nil {
		opts = append(opts, application.WithObserver(search.NewSignupIndexer(es, cfg.ESSignupIndex, logger)))
	}
	if sms := buildSMSNotifier(cfg); sms != nil {
		opts = append(opts, application.WithSMSNotifier(sms))
	}

	service := application.NewService(container.GetUserStore(), buildEmailNotifier(cfg), policy, opts...)

	var hopts []handlers.HandlerOption
	if hook := container.GetCompletionHook(); hook != nil {
		hopts = append(hopts, handlers.WithCompletionHook(hook))
	}
	handler := handlers.NewSignupHandler(service, cfg, logger, hopts...)

	return SignupModuleDeps{Service: service, Handler: handler}, nil
}

// InitModules builds the signup dependencies and adds every module to the registry.
// Call it once at startup, before RegisterAll.
func InitModules(r *Registry) error {
	deps, err := buildSignupDeps()
	if err != nil {
		return err
	}
	cfg := container.GetConfig()
	r.Add(healthModule)
	r.Add(modules.NewSignupModule(deps.Handler, container.GetRedis(), cfg))
	if cfg.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule(container.GetRedis()))
	}
	return nil
}
