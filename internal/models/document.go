package models

// Document accessors used by the store package.

func (u *User) DocumentID() string         { return u.ID }
func (u *User) DocumentVersion() int64     { return u.Version }
func (u *User) SetDocumentVersion(v int64) { u.Version = v }

func (i *UserInvite) DocumentID() string         { return i.ID }
func (i *UserInvite) DocumentVersion() int64     { return i.Version }
func (i *UserInvite) SetDocumentVersion(v int64) { i.Version = v }

func (p *Project) DocumentID() string         { return p.ID }
func (p *Project) DocumentVersion() int64     { return p.Version }
func (p *Project) SetDocumentVersion(v int64) { p.Version = v }

func (a *Agent) DocumentID() string         { return a.ID }
func (a *Agent) DocumentVersion() int64     { return a.Version }
func (a *Agent) SetDocumentVersion(v int64) { a.Version = v }

func (p *AgentPrompt) DocumentID() string         { return p.ID }
func (p *AgentPrompt) DocumentVersion() int64     { return p.Version }
func (p *AgentPrompt) SetDocumentVersion(v int64) { p.Version = v }

func (k *ProjectAPIKey) DocumentID() string         { return k.ID }
func (k *ProjectAPIKey) DocumentVersion() int64     { return k.Version }
func (k *ProjectAPIKey) SetDocumentVersion(v int64) { k.Version = v }
