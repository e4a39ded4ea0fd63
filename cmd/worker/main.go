package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	"github.com/aws/aws-sdk-go-v2/service/identitystore"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/servicecatalog"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"

	"github.com/edvin/accountfactory/internal/activity"
	"github.com/edvin/accountfactory/internal/catalog"
	"github.com/edvin/accountfactory/internal/config"
	"github.com/edvin/accountfactory/internal/directory"
	"github.com/edvin/accountfactory/internal/gate"
	"github.com/edvin/accountfactory/internal/logging"
	"github.com/edvin/accountfactory/internal/metrics"
	"github.com/edvin/accountfactory/internal/notify"
	"github.com/edvin/accountfactory/internal/orgs"
	"github.com/edvin/accountfactory/internal/pipeline"
	"github.com/edvin/accountfactory/internal/targetstate"
	"github.com/edvin/accountfactory/internal/validate"
	"github.com/edvin/accountfactory/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("worker"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load aws config")
	}

	tlsConfig, err := cfg.TemporalTLS()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure temporal TLS")
	}
	dialOpts := temporalclient.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	}
	if tlsConfig != nil {
		dialOpts.ConnectionOptions = temporalclient.ConnectionOptions{TLS: tlsConfig}
		logger.Info().Msg("temporal mTLS enabled")
	}
	tc, err := temporalclient.Dial(dialOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	w := worker.New(tc, workflow.TaskQueue, worker.Options{
		Interceptors: []interceptor.WorkerInterceptor{&workflow.ErrorTypingInterceptor{}},
	})

	// Pipeline, gate and target state share the deployment pipeline.
	deployPipeline := pipeline.New(cfg.PipelineName,
		codepipeline.NewFromConfig(awsCfg), codebuild.NewFromConfig(awsCfg))
	w.RegisterActivity(activity.NewDeploy(deployPipeline, logger))

	deployGate := gate.New(cfg.DecommissionProject, deployPipeline, codebuild.NewFromConfig(awsCfg))
	w.RegisterActivity(activity.NewGate(deployGate))

	store := targetstate.NewStore(s3.NewFromConfig(awsCfg), deployPipeline)
	w.RegisterActivity(activity.NewTargetState(store, cfg.RootEmailPrefix, cfg.RootEmailDomain, logger))

	w.RegisterActivity(activity.NewResolve(catalog.NewResolver(servicecatalog.NewFromConfig(awsCfg))))

	orgsClient := orgs.NewClient(organizations.NewFromConfig(awsCfg))
	memberClients := activity.NewRoleClientFactory(awsCfg, cfg.ValidationRoleName)
	w.RegisterActivity(activity.NewAncillary(orgsClient, memberClients, logger))

	validation, err := buildValidation(cfg, orgsClient, memberClients)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load validation plan")
	}
	w.RegisterActivity(validation)

	w.RegisterActivity(activity.NewNotify(
		notify.NewFailureNotifier(sns.NewFromConfig(awsCfg), cfg.FailureTopicARN),
		notify.NewMailer(sesv2.NewFromConfig(awsCfg), cfg.CompletionFromEmail, notify.MailOptions{
			CC:          splitList(cfg.CompletionCcList),
			BCC:         splitList(cfg.CompletionBccList),
			SSOLoginURL: cfg.SSOLoginURL,
		}),
	))

	// Directory activities are optional: without a Graph secret the worker
	// serves requests that have no AD integration.
	if cfg.GraphSecretName != "" {
		directoryActivities, err := buildDirectory(ctx, cfg, awsCfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure directory integration")
		}
		w.RegisterActivity(directoryActivities)
	} else {
		logger.Info().Msg("directory integration disabled, GRAPH_API_SECRET_NAME not set")
	}

	w.RegisterWorkflow(workflow.CreateAccountWorkflow)
	w.RegisterWorkflow(workflow.SyncAccountTagsWorkflow)

	if cfg.MetricsListenAddr != "" {
		metricsSrv := metrics.NewServer(cfg.MetricsListenAddr)
		go func() {
			logger.Info().Str("addr", cfg.MetricsListenAddr).Msg("starting metrics server")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	logger.Info().Str("taskQueue", workflow.TaskQueue).Msg("starting temporal worker")
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal().Err(err).Msg("worker failed")
	}

	logger.Info().Msg("shutting down worker")
}

func buildValidation(cfg *config.Config, orgsClient *orgs.Client, memberClients *activity.RoleClientFactory) (*activity.Validation, error) {
	planData, err := os.ReadFile(cfg.ValidationConfigPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", cfg.ValidationConfigPath, err)
	}
	plan, err := validate.ParsePlan(planData)
	if err != nil {
		return nil, err
	}

	propagation := validate.NewPropagation(cfg.PropagationWindow)
	memberIAM := func(ctx context.Context, accountID string) (validate.IAMAPI, error) {
		return memberClients.IAM(ctx, accountID)
	}
	runner := validate.NewRunner(
		&validate.PlacementCheck{Orgs: orgsClient, Propagation: propagation},
		&validate.TagCheck{Orgs: orgsClient, Propagation: propagation},
		&validate.AliasCheck{Factory: memberIAM, Propagation: propagation},
		&validate.RoleCheck{Factory: memberIAM, Propagation: propagation},
		&validate.ParameterCheck{
			Factory: func(ctx context.Context, accountID string) (validate.SSMAPI, error) {
				return memberClients.SSM(ctx, accountID)
			},
			Propagation: propagation,
		},
		&validate.BucketCheck{Factory: memberClients.S3, Propagation: propagation},
	)
	return activity.NewValidation(runner, plan), nil
}

func buildDirectory(ctx context.Context, cfg *config.Config, awsCfg aws.Config, logger zerolog.Logger) (*activity.Directory, error) {
	creds, err := directory.LoadGraphCredentials(ctx,
		secretsmanager.NewFromConfig(awsCfg), cfg.GraphSecretName)
	if err != nil {
		return nil, err
	}

	identityCenter := directory.NewIdentityCenter(
		identitystore.NewFromConfig(awsCfg),
		ssoadmin.NewFromConfig(awsCfg),
		cfg.IdentityStoreID,
		cfg.SSOInstanceARN,
	)

	return activity.NewDirectory(
		directory.NewGraphClient(creds),
		identityCenter,
		cfg.DirectoryServicePrincipalID,
		cfg.DirectoryAppRoleID,
		cfg.DirectoryProvisioningJobID,
		logger,
	), nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
