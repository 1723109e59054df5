package ledger

import (
	"context"
	"crypto/x509"
	"os"
	"path"
	"time"

	"github.com/hyp3rd/ewrap"
	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// FabricConfig locates the peer and the client identity.
type FabricConfig struct {
	MSPID        string
	CertPath     string
	KeyDir       string
	TLSCertPath  string
	PeerEndpoint string
	GatewayPeer  string
	Channel      string
	Chaincode    string
}

// FabricLedger writes roots as assets of a Fabric chaincode.
type FabricLedger struct {
	clientConnection *grpc.ClientConn
	gateway          *client.Gateway
	contract         *client.Contract
}

// NewFabricLedger connects to the gateway peer.
func NewFabricLedger(cfg FabricConfig) (*FabricLedger, error) {
	cert, err := loadCertificate(cfg.CertPath)
	if err != nil {
		return nil, err
	}

	key, err := loadPrivateKey(cfg.KeyDir)
	if err != nil {
		return nil, err
	}

	id, err := identity.NewX509Identity(cfg.MSPID, cert)
	if err != nil {
		return nil, ewrap.Wrap(err, "create identity")
	}

	sign, err := identity.NewPrivateKeySign(key)
	if err != nil {
		return nil, ewrap.Wrap(err, "create signer")
	}

	transportCreds, err := credentials.NewClientTLSFromFile(cfg.TLSCertPath, cfg.GatewayPeer)
	if err != nil {
		return nil, ewrap.Wrapf(err, "load tls certificate %s", cfg.TLSCertPath)
	}

	conn, err := grpc.NewClient(cfg.PeerEndpoint, grpc.WithTransportCredentials(transportCreds))
	if err != nil {
		return nil, ewrap.Wrapf(err, "dial %s", cfg.PeerEndpoint)
	}

	gateway, err := client.Connect(
		id,
		client.WithSign(sign),
		client.WithClientConnection(conn),
		client.WithEvaluateTimeout(5*time.Second),
		client.WithEndorseTimeout(15*time.Second),
		client.WithSubmitTimeout(5*time.Second),
		client.WithCommitStatusTimeout(1*time.Minute),
	)
	if err != nil {
		conn.Close()

		return nil, ewrap.Wrap(err, "connect gateway")
	}

	contract := gateway.GetNetwork(cfg.Channel).GetContract(cfg.Chaincode)

	return &FabricLedger{clientConnection: conn, gateway: gateway, contract: contract}, nil
}

// Read returns the metadata of the asset stored under hash.
func (f *FabricLedger) Read(ctx context.Context, hash string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	result, err := f.contract.EvaluateWithContext(ctx, "ReadAsset", client.WithArguments(hash))
	if err != nil {
		return "", ewrap.Wrapf(err, "read asset %s", hash)
	}

	return string(result), nil
}

// Write endorses and submits the asset, waits for the commit and returns the transaction id.
func (f *FabricLedger) Write(ctx context.Context, hash string, metadata string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	proposal, err := f.contract.NewProposal("CreateAsset",
		client.WithArguments(hash, metadata, "1", "perfstore", "0"))
	if err != nil {
		return "", ewrap.Wrap(err, "create proposal")
	}

	transaction, err := proposal.EndorseWithContext(ctx)
	if err != nil {
		return "", ewrap.Wrap(err, "endorse")
	}

	commit, err := transaction.SubmitWithContext(ctx)
	if err != nil {
		return "", ewrap.Wrap(err, "submit")
	}

	status, err := commit.StatusWithContext(ctx)
	if err != nil {
		return "", ewrap.Wrap(err, "commit status")
	}

	if !status.Successful {
		return "", ewrap.Newf("transaction %s failed with status code %d", transaction.TransactionID(), status.Code)
	}

	return transaction.TransactionID(), nil
}

func (f *FabricLedger) Close() {
	f.gateway.Close()
	f.clientConnection.Close()
}

func loadCertificate(filename string) (*x509.Certificate, error) {
	certificatePEM, err := os.ReadFile(filename)
	if err != nil {
		return nil, ewrap.Wrap(err, "read certificate file")
	}

	return identity.CertificateFromPEM(certificatePEM)
}

func loadPrivateKey(dir string) (any, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, ewrap.Wrap(err, "read key directory")
	}

	if len(files) == 0 {
		return nil, ewrap.Newf("no private key in %s", dir)
	}

	privateKeyPEM, err := os.ReadFile(path.Join(dir, files[0].Name()))
	if err != nil {
		return nil, ewrap.Wrap(err, "read private key file")
	}

	return identity.PrivateKeyFromPEM(privateKeyPEM)
}
