package wiki

// Revision is one historical edit of an article, as returned by
// FetchRevisions. The list keeps API order: newest first.
type Revision struct {
	ID         int64
	ParentID   int64
	Timestamp  string // "2006-01-02 15:04:05"
	User       string
	Comment    string
	Flags      string // comma-joined
	Size       int
	SizeChange *int   // nil when the page holds no chronologically prior revision
	Tags       string // comma-joined
}

// RemoteUser is the raw user-metadata record from the API.
type RemoteUser struct {
	ID      *int64
	Name    string
	Groups  []string
	Blocked bool
	Missing bool // missing or invalid on the remote side
}

// wire formats

type revisionsResponse struct {
	Continue map[string]string `json:"continue"`
	Query    struct {
		Pages map[string]struct {
			PageID    int64          `json:"pageid"`
			Title     string         `json:"title"`
			Missing   *string        `json:"missing"`
			Revisions []wireRevision `json:"revisions"`
		} `json:"pages"`
	} `json:"query"`
	Error *apiError `json:"error"`
}

type wireRevision struct {
	RevID     int64    `json:"revid"`
	ParentID  int64    `json:"parentid"`
	Minor     *string  `json:"minor"`
	Anon      *string  `json:"anon"`
	User      string   `json:"user"`
	Timestamp string   `json:"timestamp"`
	Size      int      `json:"size"`
	Comment   string   `json:"comment"`
	Tags      []string `json:"tags"`
}

type usersResponse struct {
	Query struct {
		Users []wireUser `json:"users"`
	} `json:"query"`
	Error *apiError `json:"error"`
}

type wireUser struct {
	UserID  *int64   `json:"userid"`
	Name    string   `json:"name"`
	Missing *string  `json:"missing"`
	Invalid *string  `json:"invalid"`
	Groups  []string `json:"groups"`
	BlockID *int64   `json:"blockid"`
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}
