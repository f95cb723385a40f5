package node

import (
	"bytes"
	"context"
	"fmt"

	"github.com/apex/log"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"

	"slicelab/api"
)

const (
	ContainerPrefix = "slicelab-"
	DefaultImage    = "sec_test"
)

// ContainerName is the docker name of the container backing host name.
func ContainerName(name string) string {
	return ContainerPrefix + name
}

// ContainerManager runs one privileged, network-less container per host. The
// container's network namespace is wired up from outside through veths.
type ContainerManager struct {
	dClient *client.Client
	image   string
}

func NewContainerManager(image string) (*ContainerManager, error) {
	dClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "create docker client")
	}
	if image == "" {
		image = DefaultImage
	}
	return &ContainerManager{dClient: dClient, image: image}, nil
}

// AddNode creates and starts the container for host n and records its
// network namespace path in n.NetNs.
func (cm *ContainerManager) AddNode(ctx context.Context, n *api.Node) error {
	if n.Image == "" {
		n.Image = cm.image
	}
	name := ContainerName(n.Name)

	_, err := cm.dClient.ContainerCreate(ctx, &container.Config{
		Image:           n.Image,
		Hostname:        n.Name,
		NetworkDisabled: true,
		User:            "root",
		Cmd:             []string{"sleep", "infinity"},
	}, &container.HostConfig{
		Privileged: true,
		Sysctls: map[string]string{
			"net.ipv6.conf.all.disable_ipv6": "1",
		},
	}, nil, nil, name)
	if err != nil {
		return errors.Wrapf(err, "create container for %s", n.Name)
	}

	if err = cm.dClient.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return errors.Wrapf(err, "start container for %s", n.Name)
	}

	res, err := cm.dClient.ContainerInspect(ctx, name)
	if err != nil {
		return errors.Wrapf(err, "inspect container for %s", n.Name)
	}
	if res.State == nil || res.State.Pid == 0 {
		return errors.Errorf("container for %s is not running", n.Name)
	}
	n.NetNs = fmt.Sprintf("/proc/%d/ns/net", res.State.Pid)
	log.WithFields(log.Fields{"host": n.Name, "image": n.Image, "netns": n.NetNs}).Debug("container up")
	return nil
}

// Exec runs argv inside host name's container and returns its combined
// output and exit code.
func (cm *ContainerManager) Exec(ctx context.Context, name string, argv []string) (string, int, error) {
	created, err := cm.dClient.ContainerExecCreate(ctx, ContainerName(name), container.ExecOptions{
		User:         "root",
		Cmd:          argv,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", 0, errors.Wrapf(err, "exec in %s", name)
	}

	resp, err := cm.dClient.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", 0, errors.Wrapf(err, "attach to exec in %s", name)
	}
	defer resp.Close()

	var stdout, stderr bytes.Buffer
	copied := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(&stdout, &stderr, resp.Reader)
		copied <- err
	}()
	select {
	case err = <-copied:
		if err != nil {
			return "", 0, errors.Wrapf(err, "read exec output from %s", name)
		}
	case <-ctx.Done():
		return "", 0, ctx.Err()
	}

	insp, err := cm.dClient.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return "", 0, errors.Wrapf(err, "inspect exec in %s", name)
	}
	return stdout.String() + stderr.String(), insp.ExitCode, nil
}

func (cm *ContainerManager) DeleteNode(ctx context.Context, name string) error {
	err := cm.dClient.ContainerRemove(ctx, ContainerName(name), container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return errors.Wrapf(err, "remove container for %s", name)
	}
	return nil
}

func (cm *ContainerManager) Close() error {
	return cm.dClient.Close()
}
