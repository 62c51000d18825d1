package main

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"
)

type PostgresStore struct {
	db  *sql.DB
	dsn string
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresStore{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresStore) Init() error {
	// rely on migrations to create tables; just verify connectivity
	return p.db.Ping()
}

func isPgUnique(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (p *PostgresStore) CreateUser(username, email, passwordHash string) (*User, error) {
	var id int64
	err := p.db.QueryRow(
		`INSERT INTO users(username,email,password,role,created_at) VALUES($1,$2,$3,'user',now()) RETURNING id`,
		username, email, passwordHash).Scan(&id)
	if err != nil {
		if isPgUnique(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return p.GetUserByID(id)
}

func (p *PostgresStore) scanUser(row *sql.Row) (*User, error) {
	var u User
	var videos []byte
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.Role, &u.AvatarPath, &videos, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(videos, &u.YouTubeVideos); err != nil {
		u.YouTubeVideos = nil
	}
	return &u, nil
}

func (p *PostgresStore) GetUserByUsername(username string) (*User, error) {
	return p.scanUser(p.db.QueryRow(
		`SELECT id,username,email,password,role,avatar_path,youtube_videos,created_at FROM users WHERE username = $1`, username))
}

func (p *PostgresStore) GetUserByID(id int64) (*User, error) {
	return p.scanUser(p.db.QueryRow(
		`SELECT id,username,email,password,role,avatar_path,youtube_videos,created_at FROM users WHERE id = $1`, id))
}

func (p *PostgresStore) UpdateUser(id int64, username, email string) (*User, error) {
	res, err := p.db.Exec(`UPDATE users SET username = $1, email = $2 WHERE id = $3`, username, email, id)
	if err != nil {
		if isPgUnique(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return p.GetUserByID(id)
}

func (p *PostgresStore) SetUserAvatar(id int64, path string) error {
	_, err := p.db.Exec(`UPDATE users SET avatar_path = $1 WHERE id = $2`, path, id)
	return err
}

func (p *PostgresStore) SetUserRole(id int64, role string) error {
	_, err := p.db.Exec(`UPDATE users SET role = $1 WHERE id = $2`, role, id)
	return err
}

func (p *PostgresStore) AddYouTubeVideo(id int64, videoID string) error {
	_, err := p.db.Exec(
		`UPDATE users SET youtube_videos = youtube_videos || to_jsonb($1::text) WHERE id = $2`, videoID, id)
	return err
}

func (p *PostgresStore) CountUsers() (int64, error) {
	var n int64
	err := p.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (p *PostgresStore) CreateProject(pr *Project) (*Project, error) {
	var id int64
	err := p.db.QueryRow(
		`INSERT INTO projects(owner_id,title,category,difficulty,duration,cost,description,materials,tools,images,created_at,updated_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now()) RETURNING id`,
		pr.OwnerID, pr.Title, pr.Category, pr.Difficulty, pr.Duration, pr.Cost, pr.Description,
		marshalList(pr.Materials), marshalList(pr.Tools), marshalList(pr.Images)).Scan(&id)
	if err != nil {
		return nil, err
	}
	return p.GetProjectByID(id)
}

func scanPgProject(scan func(dest ...interface{}) error) (*Project, error) {
	var pr Project
	var materials, tools, images []byte
	err := scan(&pr.ID, &pr.OwnerID, &pr.Title, &pr.Category, &pr.Difficulty, &pr.Duration, &pr.Cost,
		&pr.Description, &materials, &tools, &images, &pr.CreatedAt, &pr.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	json.Unmarshal(materials, &pr.Materials)
	json.Unmarshal(tools, &pr.Tools)
	json.Unmarshal(images, &pr.Images)
	return &pr, nil
}

func (p *PostgresStore) GetProjectByID(id int64) (*Project, error) {
	row := p.db.QueryRow(`SELECT `+projectCols+` FROM projects WHERE id = $1`, id)
	return scanPgProject(row.Scan)
}

func (p *PostgresStore) ListProjects() ([]*Project, error) {
	rows, err := p.db.Query(`SELECT ` + projectCols + ` FROM projects ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Project
	for rows.Next() {
		pr, err := scanPgProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateProject(pr *Project) error {
	_, err := p.db.Exec(
		`UPDATE projects SET title=$1,category=$2,difficulty=$3,duration=$4,cost=$5,description=$6,materials=$7,tools=$8,images=$9,updated_at=now() WHERE id=$10`,
		pr.Title, pr.Category, pr.Difficulty, pr.Duration, pr.Cost, pr.Description,
		marshalList(pr.Materials), marshalList(pr.Tools), marshalList(pr.Images), pr.ID)
	return err
}

func (p *PostgresStore) DeleteProject(id int64) error {
	if _, err := p.db.Exec(`DELETE FROM likes WHERE project_id = $1`, id); err != nil {
		return err
	}
	if _, err := p.db.Exec(`DELETE FROM comments WHERE project_id = $1`, id); err != nil {
		return err
	}
	_, err := p.db.Exec(`DELETE FROM projects WHERE id = $1`, id)
	return err
}

func (p *PostgresStore) CountProjects() (int64, error) {
	var n int64
	err := p.db.QueryRow(`SELECT COUNT(*) FROM projects`).Scan(&n)
	return n, err
}

func (p *PostgresStore) CreateComment(projectID, authorID int64, text string) (*Comment, error) {
	var id int64
	err := p.db.QueryRow(
		`INSERT INTO comments(project_id,author_id,text,created_at) VALUES($1,$2,$3,now()) RETURNING id`,
		projectID, authorID, text).Scan(&id)
	if err != nil {
		return nil, err
	}
	return p.GetCommentByID(id)
}

func (p *PostgresStore) GetCommentByID(id int64) (*Comment, error) {
	row := p.db.QueryRow(`SELECT id,project_id,author_id,text,created_at FROM comments WHERE id = $1`, id)
	var c Comment
	if err := row.Scan(&c.ID, &c.ProjectID, &c.AuthorID, &c.Text, &c.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (p *PostgresStore) ListComments(projectID int64) ([]*Comment, error) {
	rows, err := p.db.Query(`SELECT id,project_id,author_id,text,created_at FROM comments WHERE project_id = $1 ORDER BY id`, projectID)
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

func (p *PostgresStore) DeleteComment(id int64) error {
	_, err := p.db.Exec(`DELETE FROM comments WHERE id = $1`, id)
	return err
}

func (p *PostgresStore) CountComments() (int64, error) {
	var n int64
	err := p.db.QueryRow(`SELECT COUNT(*) FROM comments`).Scan(&n)
	return n, err
}

func (p *PostgresStore) AddLike(projectID, userID int64) error {
	_, err := p.db.Exec(
		`INSERT INTO likes(project_id,user_id) VALUES($1,$2) ON CONFLICT DO NOTHING`, projectID, userID)
	return err
}

func (p *PostgresStore) RemoveLike(projectID, userID int64) error {
	_, err := p.db.Exec(`DELETE FROM likes WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	return err
}

func (p *PostgresStore) CountLikes(projectID int64) (int64, error) {
	var n int64
	err := p.db.QueryRow(`SELECT COUNT(*) FROM likes WHERE project_id = $1`, projectID).Scan(&n)
	return n, err
}

func (p *PostgresStore) HasLiked(projectID, userID int64) (bool, error) {
	var n int64
	err := p.db.QueryRow(`SELECT COUNT(*) FROM likes WHERE project_id = $1 AND user_id = $2`, projectID, userID).Scan(&n)
	return n > 0, err
}

func (p *PostgresStore) close() error { return p.db.Close() }
func (p *PostgresStore) ping() bool   { return p.db.Ping() == nil }
