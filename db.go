package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrDuplicate is returned by create/update operations that would
// violate a uniqueness constraint (username, email).
var ErrDuplicate = errors.New("duplicate value")

// Store is the persistence interface for users, projects, comments and
// likes. Getters return (nil, nil) when the record does not exist.
type Store interface {
	Init() error
	// User operations
	CreateUser(username, email, passwordHash string) (*User, error)
	GetUserByUsername(username string) (*User, error)
	GetUserByID(id int64) (*User, error)
	UpdateUser(id int64, username, email string) (*User, error)
	SetUserAvatar(id int64, path string) error
	SetUserRole(id int64, role string) error
	AddYouTubeVideo(id int64, videoID string) error
	CountUsers() (int64, error)
	// Project operations
	CreateProject(p *Project) (*Project, error)
	GetProjectByID(id int64) (*Project, error)
	ListProjects() ([]*Project, error)
	UpdateProject(p *Project) error
	DeleteProject(id int64) error
	CountProjects() (int64, error)
	// Comment operations
	CreateComment(projectID, authorID int64, text string) (*Comment, error)
	GetCommentByID(id int64) (*Comment, error)
	ListComments(projectID int64) ([]*Comment, error)
	DeleteComment(id int64) error
	CountComments() (int64, error)
	// Like operations
	AddLike(projectID, userID int64) error
	RemoveLike(projectID, userID int64) error
	CountLikes(projectID int64) (int64, error)
	HasLiked(projectID, userID int64) (bool, error)
}

// Memory store, used by tests and local development.
type MemStore struct {
	mu       sync.Mutex
	users    map[int64]*User
	projects map[int64]*Project
	comments map[int64]*Comment
	likes    map[int64]map[int64]bool // projectID -> userID set
	seq      int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:    map[int64]*User{},
		projects: map[int64]*Project{},
		comments: map[int64]*Comment{},
		likes:    map[int64]map[int64]bool{},
		seq:      1,
	}
}

func (m *MemStore) Init() error { return nil }

func (m *MemStore) nextID() int64 {
	id := m.seq
	m.seq++
	return id
}

func (m *MemStore) CreateUser(username, email, passwordHash string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username || u.Email == email {
			return nil, ErrDuplicate
		}
	}
	u := &User{
		ID:        m.nextID(),
		Username:  username,
		Email:     email,
		Password:  passwordHash,
		Role:      RoleUser,
		CreatedAt: time.Now(),
	}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *MemStore) GetUserByUsername(username string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemStore) GetUserByID(id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *MemStore) UpdateUser(id int64, username, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	for _, other := range m.users {
		if other.ID == id {
			continue
		}
		if other.Username == username || other.Email == email {
			return nil, ErrDuplicate
		}
	}
	u.Username = username
	u.Email = email
	cp := *u
	return &cp, nil
}

func (m *MemStore) SetUserAvatar(id int64, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.AvatarPath = path
	}
	return nil
}

func (m *MemStore) SetUserRole(id int64, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.Role = role
	}
	return nil
}

func (m *MemStore) AddYouTubeVideo(id int64, videoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.YouTubeVideos = append(u.YouTubeVideos, videoID)
	}
	return nil
}

func (m *MemStore) CountUsers() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

func (m *MemStore) CreateProject(p *Project) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	cp := *p
	cp.ID = m.nextID()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.projects[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *MemStore) GetProjectByID(id int64) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.projects[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *MemStore) ListProjects() ([]*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Project, 0, len(m.projects))
	for _, p := range m.projects {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *MemStore) UpdateProject(p *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.projects[p.ID]
	if !ok {
		return nil
	}
	cp := *p
	cp.OwnerID = cur.OwnerID
	cp.CreatedAt = cur.CreatedAt
	cp.UpdatedAt = time.Now()
	m.projects[p.ID] = &cp
	return nil
}

func (m *MemStore) DeleteProject(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.projects, id)
	delete(m.likes, id)
	for cid, c := range m.comments {
		if c.ProjectID == id {
			delete(m.comments, cid)
		}
	}
	return nil
}

func (m *MemStore) CountProjects() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.projects)), nil
}

func (m *MemStore) CreateComment(projectID, authorID int64, text string) (*Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &Comment{
		ID:        m.nextID(),
		ProjectID: projectID,
		AuthorID:  authorID,
		Text:      text,
		CreatedAt: time.Now(),
	}
	m.comments[c.ID] = c
	cp := *c
	return &cp, nil
}

func (m *MemStore) GetCommentByID(id int64) (*Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.comments[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *MemStore) ListComments(projectID int64) ([]*Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Comment
	for _, c := range m.comments {
		if c.ProjectID == projectID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) DeleteComment(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.comments, id)
	return nil
}

func (m *MemStore) CountComments() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.comments)), nil
}

func (m *MemStore) AddLike(projectID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.likes[projectID] == nil {
		m.likes[projectID] = map[int64]bool{}
	}
	m.likes[projectID][userID] = true
	return nil
}

func (m *MemStore) RemoveLike(projectID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.likes[projectID], userID)
	return nil
}

func (m *MemStore) CountLikes(projectID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.likes[projectID])), nil
}

func (m *MemStore) HasLiked(projectID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.likes[projectID][userID], nil
}

func (m *MemStore) close() error { return nil }
func (m *MemStore) ping() bool   { return true }

// SQLite store
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: d, path: path}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			avatar_path TEXT NOT NULL DEFAULT '',
			youtube_videos TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP);`,
		`CREATE TABLE IF NOT EXISTS projects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id INTEGER NOT NULL REFERENCES users(id),
			title TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			difficulty TEXT NOT NULL DEFAULT '',
			duration TEXT NOT NULL DEFAULT '',
			cost TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			materials TEXT NOT NULL DEFAULT '[]',
			tools TEXT NOT NULL DEFAULT '[]',
			images TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP);`,
		`CREATE TABLE IF NOT EXISTS comments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL REFERENCES projects(id),
			author_id INTEGER NOT NULL REFERENCES users(id),
			text TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP);`,
		`CREATE TABLE IF NOT EXISTS likes (
			project_id INTEGER NOT NULL REFERENCES projects(id),
			user_id INTEGER NOT NULL REFERENCES users(id),
			PRIMARY KEY (project_id, user_id));`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func isSQLiteUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

func marshalList(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func (s *SQLiteStore) CreateUser(username, email, passwordHash string) (*User, error) {
	res, err := s.db.Exec(
		`INSERT INTO users(username,email,password) VALUES(?,?,?)`,
		username, email, passwordHash)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	id, _ := res.LastInsertId()
	return s.GetUserByID(id)
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*User, error) {
	var u User
	var videos string
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.Role, &u.AvatarPath, &videos, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(videos), &u.YouTubeVideos); err != nil {
		u.YouTubeVideos = nil
	}
	return &u, nil
}

func (s *SQLiteStore) GetUserByUsername(username string) (*User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id,username,email,password,role,avatar_path,youtube_videos,created_at FROM users WHERE username = ?`, username))
}

func (s *SQLiteStore) GetUserByID(id int64) (*User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id,username,email,password,role,avatar_path,youtube_videos,created_at FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) UpdateUser(id int64, username, email string) (*User, error) {
	res, err := s.db.Exec(`UPDATE users SET username = ?, email = ? WHERE id = ?`, username, email, id)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.GetUserByID(id)
}

func (s *SQLiteStore) SetUserAvatar(id int64, path string) error {
	_, err := s.db.Exec(`UPDATE users SET avatar_path = ? WHERE id = ?`, path, id)
	return err
}

func (s *SQLiteStore) SetUserRole(id int64, role string) error {
	_, err := s.db.Exec(`UPDATE users SET role = ? WHERE id = ?`, role, id)
	return err
}

func (s *SQLiteStore) AddYouTubeVideo(id int64, videoID string) error {
	u, err := s.GetUserByID(id)
	if err != nil || u == nil {
		return err
	}
	videos := append(u.YouTubeVideos, videoID)
	_, err = s.db.Exec(`UPDATE users SET youtube_videos = ? WHERE id = ?`, marshalList(videos), id)
	return err
}

func (s *SQLiteStore) CountUsers() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) CreateProject(p *Project) (*Project, error) {
	res, err := s.db.Exec(
		`INSERT INTO projects(owner_id,title,category,difficulty,duration,cost,description,materials,tools,images)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		p.OwnerID, p.Title, p.Category, p.Difficulty, p.Duration, p.Cost, p.Description,
		marshalList(p.Materials), marshalList(p.Tools), marshalList(p.Images))
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	return s.GetProjectByID(id)
}

const projectCols = `id,owner_id,title,category,difficulty,duration,cost,description,materials,tools,images,created_at,updated_at`

func scanProject(scan func(dest ...interface{}) error) (*Project, error) {
	var p Project
	var materials, tools, images string
	err := scan(&p.ID, &p.OwnerID, &p.Title, &p.Category, &p.Difficulty, &p.Duration, &p.Cost,
		&p.Description, &materials, &tools, &images, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	json.Unmarshal([]byte(materials), &p.Materials)
	json.Unmarshal([]byte(tools), &p.Tools)
	json.Unmarshal([]byte(images), &p.Images)
	return &p, nil
}

func (s *SQLiteStore) GetProjectByID(id int64) (*Project, error) {
	row := s.db.QueryRow(`SELECT `+projectCols+` FROM projects WHERE id = ?`, id)
	return scanProject(row.Scan)
}

func (s *SQLiteStore) ListProjects() ([]*Project, error) {
	rows, err := s.db.Query(`SELECT ` + projectCols + ` FROM projects ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateProject(p *Project) error {
	_, err := s.db.Exec(
		`UPDATE projects SET title=?,category=?,difficulty=?,duration=?,cost=?,description=?,materials=?,tools=?,images=?,updated_at=CURRENT_TIMESTAMP WHERE id=?`,
		p.Title, p.Category, p.Difficulty, p.Duration, p.Cost, p.Description,
		marshalList(p.Materials), marshalList(p.Tools), marshalList(p.Images), p.ID)
	return err
}

func (s *SQLiteStore) DeleteProject(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM likes WHERE project_id = ?`, id); err != nil {
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM comments WHERE project_id = ?`, id); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM projects WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) CountProjects() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM projects`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) CreateComment(projectID, authorID int64, text string) (*Comment, error) {
	res, err := s.db.Exec(`INSERT INTO comments(project_id,author_id,text) VALUES(?,?,?)`, projectID, authorID, text)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	return s.GetCommentByID(id)
}

func (s *SQLiteStore) GetCommentByID(id int64) (*Comment, error) {
	row := s.db.QueryRow(`SELECT id,project_id,author_id,text,created_at FROM comments WHERE id = ?`, id)
	var c Comment
	if err := row.Scan(&c.ID, &c.ProjectID, &c.AuthorID, &c.Text, &c.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) ListComments(projectID int64) ([]*Comment, error) {
	rows, err := s.db.Query(`SELECT id,project_id,author_id,text,created_at FROM comments WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.AuthorID, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteComment(id int64) error {
	_, err := s.db.Exec(`DELETE FROM comments WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) CountComments() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM comments`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) AddLike(projectID, userID int64) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO likes(project_id,user_id) VALUES(?,?)`, projectID, userID)
	return err
}

func (s *SQLiteStore) RemoveLike(projectID, userID int64) error {
	_, err := s.db.Exec(`DELETE FROM likes WHERE project_id = ? AND user_id = ?`, projectID, userID)
	return err
}

func (s *SQLiteStore) CountLikes(projectID int64) (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM likes WHERE project_id = ?`, projectID).Scan(&n)
	return n, err
}

func (s *SQLiteStore) HasLiked(projectID, userID int64) (bool, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM likes WHERE project_id = ? AND user_id = ?`, projectID, userID).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStore) close() error { return s.db.Close() }
func (s *SQLiteStore) ping() bool   { return s.db.Ping() == nil }
