package rotation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"github.com/mpelletier/caselaw-crawler/internal/crawler"
)

// defaultLookupURL returns the caller's public address as plain text.
const defaultLookupURL = "https://api.ipify.org"

// EC2API is the slice of the EC2 client the rotator needs. Tests substitute
// a fake; production uses *ec2.Client.
type EC2API interface {
	DescribeAddresses(ctx context.Context, params *ec2.DescribeAddressesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAddressesOutput, error)
	AllocateAddress(ctx context.Context, params *ec2.AllocateAddressInput, optFns ...func(*ec2.Options)) (*ec2.AllocateAddressOutput, error)
	AssociateAddress(ctx context.Context, params *ec2.AssociateAddressInput, optFns ...func(*ec2.Options)) (*ec2.AssociateAddressOutput, error)
	ReleaseAddress(ctx context.Context, params *ec2.ReleaseAddressInput, optFns ...func(*ec2.Options)) (*ec2.ReleaseAddressOutput, error)
}

// Config identifies the instance whose egress address is rotated.
type Config struct {
	InstanceID         string
	NetworkInterfaceID string
	Region             string
	// SettleDelay is how long to wait after association before trusting the
	// new address to be live.
	SettleDelay time.Duration
	// LookupURL overrides the public-address echo service.
	LookupURL string
}

// ElasticIPRotator implements crawler.Rotator against EC2: allocate a fresh
// Elastic IP, associate it with the primary network interface, then release
// the previous allocation. Callers only ever observe success or failure;
// a partial failure surfaces as a single error with no manual cleanup.
type ElasticIPRotator struct {
	api    EC2API
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewElasticIP builds a rotator using the default AWS credential chain.
func NewElasticIP(ctx context.Context, cfg Config, logger *zap.Logger) (*ElasticIPRotator, error) {
	if cfg.InstanceID == "" || cfg.NetworkInterfaceID == "" {
		return nil, fmt.Errorf("rotation requires instance_id and network_interface_id")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewElasticIPWithAPI(ec2.NewFromConfig(awsCfg), cfg, logger), nil
}

// NewElasticIPWithAPI builds a rotator over an existing EC2 client.
func NewElasticIPWithAPI(api EC2API, cfg Config, logger *zap.Logger) *ElasticIPRotator {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 5 * time.Second
	}
	if cfg.LookupURL == "" {
		cfg.LookupURL = defaultLookupURL
	}
	return &ElasticIPRotator{
		api:    api,
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Rotate cycles the Elastic IP and returns the new public address.
func (r *ElasticIPRotator) Rotate(ctx context.Context) (string, error) {
	oldAllocation, err := r.currentAllocation(ctx)
	if err != nil {
		return "", err
	}

	alloc, err := r.api.AllocateAddress(ctx, &ec2.AllocateAddressInput{
		Domain: ec2types.DomainTypeVpc,
	})
	if err != nil {
		return "", fmt.Errorf("allocate address: %w", err)
	}
	newAddress := aws.ToString(alloc.PublicIp)
	r.logger.Info("Allocated new Elastic IP",
		zap.String("public_ip", newAddress),
		zap.String("allocation_id", aws.ToString(alloc.AllocationId)),
	)

	if _, err := r.api.AssociateAddress(ctx, &ec2.AssociateAddressInput{
		AllocationId:       alloc.AllocationId,
		NetworkInterfaceId: aws.String(r.cfg.NetworkInterfaceID),
	}); err != nil {
		return "", fmt.Errorf("associate address: %w", err)
	}

	// Give the association time to propagate before traffic resumes.
	if err := crawler.SleepContext(ctx, r.cfg.SettleDelay); err != nil {
		return "", err
	}

	if oldAllocation != "" {
		if _, err := r.api.ReleaseAddress(ctx, &ec2.ReleaseAddressInput{
			AllocationId: aws.String(oldAllocation),
		}); err != nil {
			return "", fmt.Errorf("release previous address: %w", err)
		}
		r.logger.Info("Released previous Elastic IP", zap.String("allocation_id", oldAllocation))
	}

	return newAddress, nil
}

// PublicIP resolves the address the world currently sees for this host.
func (r *ElasticIPRotator) PublicIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.LookupURL, nil)
	if err != nil {
		return "", fmt.Errorf("build lookup request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("lookup public address: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lookup public address: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", fmt.Errorf("read lookup response: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}

// currentAllocation finds the Elastic IP currently bound to the instance, if
// any. A first rotation on a fresh instance has nothing to release.
func (r *ElasticIPRotator) currentAllocation(ctx context.Context) (string, error) {
	out, err := r.api.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{
		Filters: []ec2types.Filter{{
			Name:   aws.String("instance-id"),
			Values: []string{r.cfg.InstanceID},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("describe addresses: %w", err)
	}
	if len(out.Addresses) == 0 {
		return "", nil
	}
	return aws.ToString(out.Addresses[0].AllocationId), nil
}
