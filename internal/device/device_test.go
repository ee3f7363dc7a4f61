package device

import (
	"os"
	"path/filepath"
	"testing"
)

func usbPartitionEnv() map[string]string {
	return map[string]string{
		"ACTION":       "add",
		"DEVNAME":      "/dev/sdb1",
		"DEVPATH":      "/devices/pci0000:00/0000:00:14.0/usb2/2-1/2-1:1.0/host6/target6:0:0/6:0:0:0/block/sdb/sdb1",
		"DEVTYPE":      "partition",
		"SUBSYSTEM":    "block",
		"ID_BUS":       "usb",
		"ID_VENDOR":    "SanDisk",
		"ID_MODEL":     "Cruzer_Blade",
		"ID_MODEL_ENC": `Cruzer\x20Blade`,
		"ID_FS_LABEL":  "BACKUP",
		"ID_FS_TYPE":   "vfat",
	}
}

func TestFromEnvUSBPartition(t *testing.T) {
	d := FromEnv(usbPartitionEnv())
	if !d.Mountable("partition") {
		t.Fatalf("expected USB partition to be mountable: %+v", d)
	}
	if d.Product != "Cruzer Blade" {
		t.Fatalf("expected decoded model, got %q", d.Product)
	}
	if d.DisplayName() != "SanDisk Cruzer Blade" {
		t.Fatalf("unexpected display name %q", d.DisplayName())
	}
	if d.Key() != "/dev/sdb1" {
		t.Fatalf("unexpected key %q", d.Key())
	}
}

func TestMountableRejectsNonUSBAndWrongType(t *testing.T) {
	sata := map[string]string{
		"DEVNAME": "/dev/sda1",
		"DEVPATH": "/devices/pci0000:00/0000:00:17.0/ata1/host0/target0:0:0/0:0:0:0/block/sda/sda1",
		"DEVTYPE": "partition",
		"ID_BUS":  "ata",
	}
	if FromEnv(sata).Mountable("partition") {
		t.Fatal("expected non-USB device to be ignored")
	}

	disk := usbPartitionEnv()
	disk["DEVTYPE"] = "disk"
	if FromEnv(disk).Mountable("partition") {
		t.Fatal("expected whole disk to be ignored when partitions are mountable")
	}
	if !FromEnv(disk).Mountable("disk") {
		t.Fatal("expected whole disk to match disk type")
	}
}

func TestDevNodeFromKernelName(t *testing.T) {
	d := FromEnv(map[string]string{"DEVNAME": "sdc1"})
	if d.DevNode != "/dev/sdc1" {
		t.Fatalf("expected /dev prefix, got %q", d.DevNode)
	}
}

func TestResolverMergesUdevDatabaseAndSysfs(t *testing.T) {
	root := t.TempDir()
	sys := filepath.Join(root, "sys")
	udev := filepath.Join(root, "udev")
	usbDev := filepath.Join(sys, "devices/pci0000:00/usb1/1-2")
	part := filepath.Join(usbDev, "1-2:1.0/host7/block/sdd/sdd1")
	if err := os.MkdirAll(part, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, value := range map[string]string{
		"idVendor": "0781", "idProduct": "5567", "manufacturer": "SanDisk Corp", "product": "Cruzer", "serial": "ABC123",
	} {
		if err := os.WriteFile(filepath.Join(usbDev, name), []byte(value+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(udev, 0o755); err != nil {
		t.Fatal(err)
	}
	db := "S:disk/by-label/DATA\nE:ID_FS_LABEL=DATA\nE:ID_FS_TYPE=exfat\nE:ID_BUS=usb\n"
	if err := os.WriteFile(filepath.Join(udev, "b8:49"), []byte(db), 0o644); err != nil {
		t.Fatal(err)
	}

	r := &Resolver{SysRoot: sys, UdevData: udev}
	d := r.Resolve(map[string]string{
		"DEVNAME": "sdd1",
		"DEVPATH": "/devices/pci0000:00/usb1/1-2/1-2:1.0/host7/block/sdd/sdd1",
		"DEVTYPE": "partition",
		"MAJOR":   "8",
		"MINOR":   "49",
	})

	if d.FSLabel != "DATA" || d.FSType != "exfat" {
		t.Fatalf("expected udev database properties, got label=%q type=%q", d.FSLabel, d.FSType)
	}
	if d.Manufacturer != "SanDisk Corp" || d.Product != "Cruzer" || d.Serial != "ABC123" {
		t.Fatalf("expected sysfs descriptor strings, got %+v", d)
	}
	if d.VendorID != "0781" || d.ProductID != "5567" {
		t.Fatalf("unexpected ids %q:%q", d.VendorID, d.ProductID)
	}
	if !d.Mountable("partition") {
		t.Fatal("expected resolved device to be mountable")
	}
}
