package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/civicconnect/civic-connect-be/controllers"
	"github.com/civicconnect/civic-connect-be/db/sqlstore"
	"github.com/civicconnect/civic-connect-be/model"
	"github.com/civicconnect/civic-connect-be/realtime"
	"github.com/civicconnect/civic-connect-be/services"
	"github.com/civicconnect/civic-connect-be/session"
	"github.com/civicconnect/civic-connect-be/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testPassword = "correct horse"

type fakeProvider struct {
	mu         sync.Mutex
	identities map[string]*session.Identity
}

func (fp *fakeProvider) VerifySession(_ context.Context, idToken string) (*session.Identity, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if identity, ok := fp.identities[idToken]; ok {
		return identity, nil
	}
	return nil, session.ErrInvalidSession
}

func (fp *fakeProvider) SignIn(_ context.Context, email string, password string) (*session.Credentials, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if password != testPassword {
		return nil, session.ErrInvalidCredentials
	}
	for token, identity := range fp.identities {
		if identity.Email == email {
			return &session.Credentials{IdToken: token, RefreshToken: "refresh-" + token, Identity: identity}, nil
		}
	}
	return nil, session.ErrInvalidCredentials
}

func (fp *fakeProvider) SignUp(_ context.Context, req *session.SignUpRequest) (*session.Identity, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	uid := strings.Split(req.Email, "@")[0]
	identity := &session.Identity{UID: uid, Email: req.Email, DisplayName: req.DisplayName, Role: req.Role}
	fp.identities[uid+"-token"] = identity
	return identity, nil
}

func (fp *fakeProvider) SignOut(context.Context, string) error {
	return nil
}

type fakeUploader struct {
	uploads []*services.Upload
}

func (fu *fakeUploader) Upload(_ context.Context, upload *services.Upload) (string, error) {
	if _, err := services.MediaObjectName(upload.UserId, upload.ContentType); err != nil {
		return "", err
	}
	fu.uploads = append(fu.uploads, upload)
	return "https://storage.googleapis.com/civic-media/media/" + upload.UserId + "/a.png", nil
}

type testEnv struct {
	engine   *gin.Engine
	store    *sqlstore.Store
	feed     *controllers.FeedController
	uploader *fakeUploader
	citizen  *model.Profile
	official *model.Profile
	admin    *model.Profile
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	broker := realtime.NewLocalBroker()
	store := testutil.NewStore(t, broker, nil)
	env := &testEnv{
		store:    store,
		uploader: &fakeUploader{},
		citizen:  testutil.SeedProfile(t, store, "citizen", model.RoleCitizen),
		official: testutil.SeedProfile(t, store, "official", model.RoleOfficial),
		admin:    testutil.SeedProfile(t, store, "admin", model.RoleAdmin),
	}

	provider := &fakeProvider{identities: map[string]*session.Identity{}}
	for _, profile := range []*model.Profile{env.citizen, env.official, env.admin} {
		provider.identities[profile.Id+"-token"] = &session.Identity{UID: profile.Id, Email: profile.Email}
	}
	sessions := session.NewManager(provider, store, &session.RoleRules{
		AdminDomains:     []string{"civicconnect.org"},
		VerificationCode: "OFFICIAL-2024",
	}, logger)

	mux := realtime.NewMultiplexer(broker, logger)
	t.Cleanup(mux.Close)
	require.NoError(t, sessions.WatchProfiles(context.Background(), mux))
	t.Cleanup(sessions.Dispose)
	posts := services.NewPostService(store, logger, nil)
	polls := services.NewPollService(store, logger)
	env.feed = controllers.NewFeedController(posts, polls, mux, logger, &controllers.FeedControllerOpts{
		DebounceDelay: 10 * time.Millisecond,
	})
	t.Cleanup(env.feed.Close)
	env.feed.Start(context.Background())

	env.engine = gin.New()
	Register(&env.engine.RouterGroup, &Deps{
		Sessions:      sessions,
		Posts:         posts,
		Polls:         polls,
		Moderation:    services.NewModerationService(store, logger),
		Social:        services.NewSocialService(store, logger),
		Media:         env.uploader,
		MaxUploadSize: 1024,
		Feed:          env.feed,
		Mux:           mux,
	})
	return env
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type response struct {
	Code int
	envelope
}

func (r *response) decode(t *testing.T, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Data, dst), string(r.Data))
}

func (env *testEnv) do(t *testing.T, method string, path string, token string, body interface{}) *response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)

	res := &response{Code: w.Code}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res.envelope), w.Body.String())
	return res
}

func tokenFor(profile *model.Profile) string {
	return profile.Id + "-token"
}
