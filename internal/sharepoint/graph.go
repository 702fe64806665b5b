package sharepoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	khttp "github.com/microsoft/kiota-http-go"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	msgraphcore "github.com/microsoftgraph/msgraph-sdk-go-core"
	graphauth "github.com/microsoftgraph/msgraph-sdk-go-core/authentication"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"golang.org/x/oauth2"
)

// FolderInfo summarizes a remote folder for the sync setup UI
type FolderInfo struct {
	ID         string `json:"id"`
	DriveID    string `json:"drive_id"`
	Name       string `json:"name"`
	ParentPath string `json:"parent_path"`
	FolderPath string `json:"folder_path"`
	WebURL     string `json:"web_url"`
	ChildCount int32  `json:"child_count"`
	IsFolder   bool   `json:"is_folder"`
}

// ResolveFolder looks up itemID through the Graph SDK
func (c *Client) ResolveFolder(ctx context.Context, endpoint, driveID, itemID string) (*FolderInfo, error) {
	endpoint = strings.TrimRight(endpoint, "/")
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q", endpoint)
	}

	client, err := c.graphClient(u.Hostname())
	if err != nil {
		return nil, fmt.Errorf("failed to create Graph client: %w", err)
	}
	client.GetAdapter().SetBaseUrl(endpoint)

	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	item, err := client.Drives().ByDriveId(driveID).Items().ByDriveItemId(itemID).Get(ctx, nil)
	if err != nil {
		return nil, graphSDKError(err)
	}

	info := &FolderInfo{ID: itemID, DriveID: driveID}
	if id := item.GetId(); id != nil {
		info.ID = *id
	}
	if name := item.GetName(); name != nil {
		info.Name = *name
	}
	if web := item.GetWebUrl(); web != nil {
		info.WebURL = *web
	}
	if parent := item.GetParentReference(); parent != nil {
		if p := parent.GetPath(); p != nil {
			info.ParentPath = *p
		}
	}
	if folder := item.GetFolder(); folder != nil {
		info.IsFolder = true
		if n := folder.GetChildCount(); n != nil {
			info.ChildCount = *n
		}
	}
	info.FolderPath = folderPath(info.ParentPath, info.Name)
	return info, nil
}

// graphClient builds a Graph SDK client that sends through the client's
// plain transport and only attaches the token for host.
func (c *Client) graphClient(host string) (*msgraphsdk.GraphServiceClient, error) {
	auth, err := graphauth.NewAzureIdentityAuthenticationProviderWithScopesAndValidHosts(
		&tokenSourceCredential{src: c.token}, []string{"https://graph.microsoft.com/.default"}, []string{host})
	if err != nil {
		return nil, err
	}

	options := msgraphsdk.GetDefaultClientOptions()
	hc := &http.Client{
		Transport: khttp.NewCustomTransportWithParentTransport(
			c.plain.Transport, msgraphcore.GetDefaultMiddlewaresWithOptions(&options)...),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	adapter, err := msgraphsdk.NewGraphRequestAdapterWithParseNodeFactoryAndSerializationWriterFactoryAndHttpClient(
		auth, nil, nil, hc)
	if err != nil {
		return nil, err
	}
	return msgraphsdk.NewGraphServiceClient(adapter), nil
}

// folderPath turns "/drives/{id}/root:/Shared/Docs" and "Policies" into
// "/Shared/Docs/Policies"
func folderPath(parentPath, name string) string {
	p := parentPath
	if i := strings.Index(p, "root:"); i >= 0 {
		p = p[i+len("root:"):]
	}
	p = strings.TrimRight(p, "/")
	if name == "" {
		if p == "" {
			return "/"
		}
		return p
	}
	return p + "/" + name
}

func graphSDKError(err error) error {
	var odataErr *odataerrors.ODataError
	if errors.As(err, &odataErr) && odataErr.ResponseStatusCode == 401 {
		code := ""
		if main := odataErr.GetErrorEscaped(); main != nil && main.GetCode() != nil {
			code = *main.GetCode()
		}
		if strings.Contains(strings.ToLower(code), "expired") || code == "unauthenticated" {
			return ErrTokenExpired
		}
		return ErrAuthFailed
	}
	return fmt.Errorf("failed to resolve folder: %w", err)
}

// tokenSourceCredential lets the Graph SDK authenticate with the client's
// bearer token
type tokenSourceCredential struct {
	src oauth2.TokenSource
}

func (c *tokenSourceCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	tok, err := c.src.Token()
	if err != nil {
		return azcore.AccessToken{}, err
	}
	expires := tok.Expiry
	if expires.IsZero() {
		expires = time.Now().Add(1 * time.Hour)
	}
	return azcore.AccessToken{Token: tok.AccessToken, ExpiresOn: expires}, nil
}
